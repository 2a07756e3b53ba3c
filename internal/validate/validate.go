// Package validate enforces the domain rules for template payloads before
// they reach the store. Warnings never block acceptance; errors do.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/kestrelhq/expensed/internal/config"
	"github.com/kestrelhq/expensed/internal/domain"
)

// namePattern restricts names to word characters, spaces, hyphens and dots.
var namePattern = regexp.MustCompile(`^[\w .-]+$`)

// unusualAmount is the threshold above which a warning is attached.
var unusualAmount = decimal.NewFromInt(10000)

// CreateRequest is the caller input for template creation.
type CreateRequest struct {
	Name            string
	ExpenseData     domain.ExpenseData
	Tags            []string
	Favorite        bool
	SourceExpenseID string
	CreatedFrom     domain.CreatedFrom
}

// Result carries the normalised request and any non-blocking warnings.
type Result struct {
	Normalized CreateRequest
	Warnings   []string
}

// Validator checks template payloads against the configured limits.
type Validator struct {
	limits config.Limits
}

// New creates a Validator with the given limits.
func New(limits config.Limits) *Validator {
	return &Validator{limits: limits}
}

// ValidateCreate checks a creation request and returns its normalised form:
// name trimmed, tags trimmed, lowercased, deduplicated and capped.
// Normalisation is idempotent. On failure the error is a
// *domain.ValidationError.
func (v *Validator) ValidateCreate(req CreateRequest) (Result, error) {
	var fields []domain.FieldError
	res := Result{Normalized: req}

	res.Normalized.Name = strings.TrimSpace(req.Name)
	fields = append(fields, v.nameErrors(res.Normalized.Name)...)
	fields = append(fields, v.expenseDataErrors(req.ExpenseData)...)

	normTags, tagErrs := v.normalizeTags(req.Tags)
	res.Normalized.Tags = normTags
	fields = append(fields, tagErrs...)

	if req.CreatedFrom == "" {
		res.Normalized.CreatedFrom = domain.CreatedManually
	}

	if len(fields) > 0 {
		return Result{}, &domain.ValidationError{Kind: domain.ErrInvalidData, Fields: fields}
	}

	if req.ExpenseData.MerchantAmount.GreaterThan(unusualAmount) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("amount %s seems unusually high", req.ExpenseData.MerchantAmount))
	}

	return res, nil
}

// ValidateName checks a template name against length and character rules.
func (v *Validator) ValidateName(name string) error {
	if fields := v.nameErrors(name); len(fields) > 0 {
		return &domain.ValidationError{Kind: domain.ErrInvalidName, Fields: fields}
	}
	return nil
}

// ValidateTags checks tags without normalising them.
func (v *Validator) ValidateTags(tags []string) error {
	if _, fields := v.normalizeTags(tags); len(fields) > 0 {
		return &domain.ValidationError{Kind: domain.ErrInvalidData, Fields: fields}
	}
	return nil
}

func (v *Validator) nameErrors(name string) []domain.FieldError {
	switch {
	case name == "":
		return []domain.FieldError{{Field: "name", Message: "must not be empty"}}
	case len(name) > v.limits.MaxNameLen:
		return []domain.FieldError{{
			Field:   "name",
			Message: fmt.Sprintf("must be at most %d characters", v.limits.MaxNameLen),
		}}
	case !namePattern.MatchString(name):
		return []domain.FieldError{{
			Field:   "name",
			Message: "may only contain letters, digits, spaces, hyphens and dots",
		}}
	}
	return nil
}

func (v *Validator) expenseDataErrors(data domain.ExpenseData) []domain.FieldError {
	var fields []domain.FieldError
	if strings.TrimSpace(data.Merchant.Name) == "" {
		fields = append(fields, domain.FieldError{Field: "expenseData.merchant.name", Message: "must not be empty"})
	}
	if !data.MerchantAmount.IsPositive() {
		fields = append(fields, domain.FieldError{Field: "expenseData.merchantAmount", Message: "must be greater than zero"})
	}
	if len(data.MerchantCurrency) != 3 || strings.ToUpper(data.MerchantCurrency) != data.MerchantCurrency {
		fields = append(fields, domain.FieldError{Field: "expenseData.merchantCurrency", Message: "must be a 3-letter ISO code"})
	}
	return fields
}

// normalizeTags trims, lowercases and deduplicates tags, dropping empties
// and capping at the configured maximum. Over-long tags are an error rather
// than silently truncated.
func (v *Validator) normalizeTags(tags []string) ([]string, []domain.FieldError) {
	var fields []domain.FieldError

	cleaned := lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		t := strings.ToLower(strings.TrimSpace(tag))
		return t, t != ""
	})
	cleaned = lo.Uniq(cleaned)

	for _, tag := range cleaned {
		if len(tag) > v.limits.MaxTagLen {
			fields = append(fields, domain.FieldError{
				Field:   "tags",
				Message: fmt.Sprintf("tag %q exceeds %d characters", tag, v.limits.MaxTagLen),
			})
		}
	}

	if len(cleaned) > v.limits.MaxTags {
		cleaned = cleaned[:v.limits.MaxTags]
	}
	if cleaned == nil {
		cleaned = []string{}
	}
	return cleaned, fields
}
