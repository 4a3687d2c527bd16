// Package ledger stores transaction records keyed by allocator-minted IDs.
//
// It is a consumer of idalloc.Allocator: every Create asks the injected
// allocator for a fresh identifier, and the allocator never knows about the
// ledger.
package ledger

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mybank/idalloc"
)

// Transaction types accepted by Request.Validate.
const (
	TypeDeposit    = "DEPOSIT"
	TypeWithdrawal = "WITHDRAWAL"
	TypeTransfer   = "TRANSFER"
	TypePayment    = "PAYMENT"
	TypeRefund     = "REFUND"
	TypeFee        = "FEE"
	TypeInterest   = "INTEREST"
)

// Transaction statuses.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

const (
	// DefaultCurrency is used when a request leaves the currency empty.
	DefaultCurrency = "CNY"

	maxDescriptionLen = 500

	// amount bounds in cents
	minAmountCents int64 = 1
	maxAmountCents int64 = 99999999999
)

var (
	accountNumberRe = regexp.MustCompile(`^[0-9]{16,19}$`)
	currencyRe      = regexp.MustCompile(`^[A-Z]{3}$`)
	categoryRe      = regexp.MustCompile(`^[A-Z_]+$`)
	amountRe        = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

	validTypes = map[string]bool{
		TypeDeposit: true, TypeWithdrawal: true, TypeTransfer: true, TypePayment: true,
		TypeRefund: true, TypeFee: true, TypeInterest: true,
	}
	validStatuses = map[string]bool{
		StatusPending: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true,
	}
)

// Transaction is a stored ledger record.
type Transaction struct {
	ID              idalloc.ID `json:"id"`
	TID             string     `json:"tid"`
	AccountNumber   string     `json:"accountNumber"`
	TransactionType string     `json:"transactionType"`
	// Amount is a canonical decimal string with two fraction digits.
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Request is the client-supplied part of a transaction.
type Request struct {
	AccountNumber   string `json:"accountNumber"`
	TransactionType string `json:"transactionType"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	// Status is only read by updates. Empty means COMPLETED.
	Status string `json:"status"`
}

// Normalize fills defaults and canonicalizes the amount. It is called by
// Validate; invalid amounts are left untouched.
func (r *Request) Normalize() {
	r.AccountNumber = strings.TrimSpace(r.AccountNumber)
	r.Amount = strings.TrimSpace(r.Amount)
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
	if r.Status == "" {
		r.Status = StatusCompleted
	}
	if cents, err := parseCents(r.Amount); err == nil {
		r.Amount = formatCents(cents)
	}
}

// Validate normalizes r and reports every invalid field as a *ValidationError.
func (r *Request) Validate() error {
	r.Normalize()
	errs := fieldErrors{}

	switch {
	case r.AccountNumber == "":
		errs.add("accountNumber", "accountNumber can't be empty")
	case !accountNumberRe.MatchString(r.AccountNumber):
		errs.add("accountNumber", "accountNumber must be 16 to 19 digits")
	}

	switch {
	case r.TransactionType == "":
		errs.add("transactionType", "transaction type can't be empty")
	case !validTypes[r.TransactionType]:
		errs.add("transactionType", "transaction type must be one of DEPOSIT|WITHDRAWAL|TRANSFER|PAYMENT|REFUND|FEE|INTEREST")
	}

	if r.Amount == "" {
		errs.add("amount", "amount can't be empty")
	} else if cents, err := parseCents(r.Amount); err != nil {
		errs.add("amount", err.Error())
	} else if cents < minAmountCents {
		errs.add("amount", "amount must be at least 0.01")
	} else if cents > maxAmountCents {
		errs.add("amount", "amount must not exceed 999999999.99")
	}

	if !currencyRe.MatchString(r.Currency) {
		errs.add("currency", "currency must be 3 uppercase letters")
	}
	if utf8.RuneCountInString(r.Description) > maxDescriptionLen {
		errs.add("description", fmt.Sprintf("description can't exceed %d characters", maxDescriptionLen))
	}
	if r.Category != "" && !categoryRe.MatchString(r.Category) {
		errs.add("category", "category must match ^[A-Z_]+$")
	}
	if !validStatuses[r.Status] {
		errs.add("status", "status must be one of PENDING|COMPLETED|FAILED|CANCELLED")
	}

	return errs.err()
}

// parseCents parses a non-negative decimal with at most two fraction digits.
func parseCents(s string) (int64, error) {
	if !amountRe.MatchString(s) {
		return 0, fmt.Errorf("amount must be a decimal with at most 2 fraction digits")
	}
	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > maxAmountCents/100 {
		return 0, fmt.Errorf("amount must not exceed 999999999.99")
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	return w*100 + f, nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of the ledger ordered by ID.
type PageRequest struct {
	Page int `json:"page" form:"page"`
	Size int `json:"size" form:"size"`
}

// Validate applies defaults to zero fields and rejects out-of-range values.
func (p *PageRequest) Validate() error {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}

	errs := fieldErrors{}
	if p.Page < 1 {
		errs.add("page", "page must be greater than 0")
	}
	if p.Size < 1 {
		errs.add("size", "size must be greater than 0")
	} else if p.Size > MaxPageSize {
		errs.add("size", fmt.Sprintf("size must not exceed %d", MaxPageSize))
	} else if p.Page > 1 && p.Page-1 > math.MaxInt/p.Size {
		errs.add("page", fmt.Sprintf("page must not exceed %d for size %d", math.MaxInt/p.Size+1, p.Size))
	}
	return errs.err()
}

// Offset is the number of rows before this page. It does not overflow for a
// request that passed Validate.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// Page is one page of results with pagination metadata.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

// NewPage computes the pagination metadata for content.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if total > 0 && req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
		HasNext:       req.Page < pages,
		HasPrevious:   total > 0 && req.Page > 1,
	}
}
