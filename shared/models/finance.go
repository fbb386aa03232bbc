package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkedAccount is a connection to an external financial institution. Every
// row is owned by exactly one tenant; the row policy on linked_accounts is
// what keeps one tenant's links invisible to another.
type LinkedAccount struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID        uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index:ix_linked_accounts_tenant_user"`
	UserID          string     `json:"user_id" gorm:"type:varchar(255);not null;index:ix_linked_accounts_tenant_user"`
	ItemID          string     `json:"item_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	InstitutionID   string     `json:"institution_id,omitempty" gorm:"type:varchar(255)"`
	InstitutionName string     `json:"institution_name,omitempty" gorm:"type:varchar(255)"`
	SyncCursor      string     `json:"-" gorm:"type:text"`
	IsActive        bool       `json:"is_active" gorm:"default:true"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relationships
	Transactions []Transaction `json:"transactions,omitempty" gorm:"foreignKey:LinkedAccountID;constraint:OnDelete:CASCADE"`
}

// Transaction is a single financial transaction synced from an institution.
// Inherits its tenant from the parent LinkedAccount and is row-policed.
type Transaction struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID         uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	LinkedAccountID  uuid.UUID `json:"linked_account_id" gorm:"type:uuid;not null;index"`
	ExternalID       string    `json:"external_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Amount           string    `json:"amount" gorm:"type:numeric(18,2);not null"`
	ISOCurrencyCode  string    `json:"iso_currency_code,omitempty" gorm:"type:varchar(3)"`
	Name             string    `json:"name" gorm:"type:varchar(255);not null"`
	MerchantName     string    `json:"merchant_name,omitempty" gorm:"type:varchar(255)"`
	CategoryPrimary  string    `json:"category_primary,omitempty" gorm:"type:varchar(100)"`
	CategoryDetailed string    `json:"category_detailed,omitempty" gorm:"type:varchar(100)"`
	TransactionDate  time.Time `json:"transaction_date" gorm:"type:date;not null;index"`
	Pending          bool      `json:"pending" gorm:"default:false"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relationships
	LinkedAccount *LinkedAccount `json:"linked_account,omitempty" gorm:"foreignKey:LinkedAccountID"`
}

// TableName returns the table name for the LinkedAccount model
func (LinkedAccount) TableName() string {
	return "linked_accounts"
}

// TableName returns the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
