package main

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/numbersence/phase-zero-core/shared/database"
	"github.com/numbersence/phase-zero-core/shared/models"
	"github.com/numbersence/phase-zero-core/shared/tenantctx"
	"github.com/numbersence/phase-zero-core/shared/utils"
)

// CreateAccountRequest represents the create linked account request
type CreateAccountRequest struct {
	ItemID          string `json:"item_id" binding:"required"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
}

// CreateTransactionRequest represents the create transaction request
type CreateTransactionRequest struct {
	LinkedAccountID string `json:"linked_account_id" binding:"required,uuid"`
	ExternalID      string `json:"external_id" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	ISOCurrencyCode string `json:"iso_currency_code"`
	Name            string `json:"name" binding:"required"`
	MerchantName    string `json:"merchant_name"`
	TransactionDate string `json:"transaction_date" binding:"required"`
	Pending         bool   `json:"pending"`
}

// PaginatedResponse wraps a paginated result set
type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// handleListAccounts lists the tenant's linked accounts. No tenant filter
// appears in the query: the row policy scopes the result set to the session's
// bound tenant.
func handleListAccounts(binder *database.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var accounts []models.LinkedAccount
		err := binder.Isolated(c.Request.Context(), func(tx *gorm.DB) error {
			return tx.Order("created_at DESC").Find(&accounts).Error
		})
		if err != nil {
			respondSessionError(c, err, "Failed to fetch accounts")
			return
		}

		utils.OKResponse(c, "Accounts retrieved successfully", accounts)
	}
}

// handleCreateAccount links a new account for the bound tenant.
func handleCreateAccount(binder *database.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tc := tenantctx.FromContext(c.Request.Context())
		account := models.LinkedAccount{
			ID:              uuid.New(),
			TenantID:        tc.TenantID,
			UserID:          tc.UserID,
			ItemID:          req.ItemID,
			InstitutionID:   req.InstitutionID,
			InstitutionName: req.InstitutionName,
			IsActive:        true,
		}

		err := binder.Isolated(c.Request.Context(), func(tx *gorm.DB) error {
			return tx.Create(&account).Error
		})
		if err != nil {
			respondSessionError(c, err, "Failed to create account")
			return
		}

		utils.CreatedResponse(c, "Account linked successfully", account)
	}
}

// handleListTransactions lists the tenant's transactions with optional date
// range filtering and pagination.
func handleListTransactions(binder *database.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := paginationParams(c)

		var (
			transactions []models.Transaction
			total        int64
		)
		err := binder.Isolated(c.Request.Context(), func(tx *gorm.DB) error {
			query := tx.Model(&models.Transaction{})

			if startDate, ok := dateParam(c, "start_date"); ok {
				query = query.Where("transaction_date >= ?", startDate)
			}
			if endDate, ok := dateParam(c, "end_date"); ok {
				query = query.Where("transaction_date <= ?", endDate)
			}

			if err := query.Count(&total).Error; err != nil {
				return err
			}

			return query.
				Order("transaction_date DESC, created_at DESC").
				Offset((page - 1) * pageSize).
				Limit(pageSize).
				Find(&transactions).Error
		})
		if err != nil {
			respondSessionError(c, err, "Failed to fetch transactions")
			return
		}

		utils.OKResponse(c, "Transactions retrieved successfully", PaginatedResponse{
			Items:      transactions,
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages(total, pageSize),
		})
	}
}

// handleCreateTransaction records a transaction under one of the tenant's
// linked accounts.
func handleCreateTransaction(binder *database.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		transactionDate, err := time.Parse("2006-01-02", req.TransactionDate)
		if err != nil {
			utils.BadRequestResponse(c, "transaction_date must be YYYY-MM-DD")
			return
		}

		tc := tenantctx.FromContext(c.Request.Context())
		accountID := uuid.MustParse(req.LinkedAccountID)

		transaction := models.Transaction{
			ID:              uuid.New(),
			TenantID:        tc.TenantID,
			LinkedAccountID: accountID,
			ExternalID:      req.ExternalID,
			Amount:          req.Amount,
			ISOCurrencyCode: req.ISOCurrencyCode,
			Name:            req.Name,
			MerchantName:    req.MerchantName,
			TransactionDate: transactionDate,
			Pending:         req.Pending,
		}

		err = binder.Isolated(c.Request.Context(), func(tx *gorm.DB) error {
			// The account lookup runs under the same directive, so another
			// tenant's account id resolves to not-found here.
			var account models.LinkedAccount
			if err := tx.Where("id = ?", accountID).First(&account).Error; err != nil {
				return err
			}
			return tx.Create(&transaction).Error
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Linked account not found")
			return
		}
		if err != nil {
			respondSessionError(c, err, "Failed to create transaction")
			return
		}

		utils.CreatedResponse(c, "Transaction recorded successfully", transaction)
	}
}

// respondSessionError maps binder failures onto HTTP responses. Directive
// failures are systemic and logged loudly.
func respondSessionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, database.ErrSessionDirective):
		logrus.WithError(err).WithField("path", c.FullPath()).
			Error("session isolation directive failure")
		utils.InternalServerErrorResponse(c, "Session isolation failure")
	case errors.Is(err, database.ErrSessionUnavailable):
		utils.ErrorResponse(c, 503, "Database temporarily unavailable")
	default:
		utils.InternalServerErrorResponse(c, fallback)
	}
}

// paginationParams reads page/page_size query parameters with defaults.
func paginationParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// dateParam parses an optional YYYY-MM-DD query parameter.
func dateParam(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// totalPages computes page count for a result set.
func totalPages(total int64, pageSize int) int {
	if total == 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}
