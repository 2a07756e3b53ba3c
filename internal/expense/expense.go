// Package expense submits expenses built from templates to the expense
// service. The engine depends only on the Service interface; the HTTP
// client lives alongside it.
package expense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kestrelhq/expensed/internal/domain"
)

// Payload is the expense draft submitted when a template fires.
type Payload struct {
	MerchantName     string          `json:"merchantName"`
	MerchantAmount   decimal.Decimal `json:"merchantAmount"`
	MerchantCurrency string          `json:"merchantCurrency"`
	Date             string          `json:"date"`
	PolicyType       string          `json:"policyType,omitempty"`
	Policy           json.RawMessage `json:"policy,omitempty"`
	Category         string          `json:"category,omitempty"`
	Description      string          `json:"description,omitempty"`
	ReportingData    map[string]any  `json:"reportingData,omitempty"`
}

// Result identifies the expense created by a submission.
type Result struct {
	ExpenseID string
}

// UnmarshalJSON accepts both response shapes the expense service produces:
// older deployments report the identifier as "id", newer ones as "uuid".
func (r *Result) UnmarshalJSON(data []byte) error {
	var body struct {
		ID   string `json:"id"`
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	r.ExpenseID = body.ID
	if r.ExpenseID == "" {
		r.ExpenseID = body.UUID
	}
	return nil
}

// Service is the outbound surface the scheduling engine fires into.
type Service interface {
	CreateExpense(ctx context.Context, p Payload) (*Result, error)
}

// PayloadFrom builds the submission payload for a template, dated at the
// given instant. The date is a calendar day in the instant's location.
func PayloadFrom(tmpl *domain.Template, at time.Time) Payload {
	data := tmpl.ExpenseData
	p := Payload{
		MerchantName:     data.Merchant.Name,
		MerchantAmount:   data.MerchantAmount,
		MerchantCurrency: data.MerchantCurrency,
		Date:             at.Format("2006-01-02"),
		PolicyType:       data.ResolvePolicyType(),
		Policy:           data.Policy,
		ReportingData:    data.ReportingData,
	}
	if data.Details != nil {
		p.Category = data.Details.Category
		p.Description = data.Details.Description
	}
	return p
}

// APIError is a non-2xx response from the expense service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("expense service returned %d: %s", e.Status, e.Message)
}

// AuthError means the token was rejected. Retrying without a fresh token
// is pointless.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("expense service rejected credentials (status %d)", e.Status)
}

// ValidationError means the service rejected the payload itself.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("expense service rejected payload (status %d): %s", e.Status, e.Message)
}

// TimeoutError wraps a request that exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expense service request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("expense service unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether a submission error is worth retrying: server
// errors, rate limiting, timeouts and network failures are; auth and
// validation failures are not.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 429
	}
	var timeoutErr *TimeoutError
	var netErr *NetworkError
	return errors.As(err, &timeoutErr) || errors.As(err, &netErr)
}
