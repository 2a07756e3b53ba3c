package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the current template schema version, stored on every
// template for forward migration.
const SchemaVersion = 1

// CreatedFrom records how a template came to exist.
type CreatedFrom string

const (
	CreatedManually    CreatedFrom = "manual"
	CreatedFromExpense CreatedFrom = "expense"
)

// Template is the durable user-authored recipe for a recurring expense.
// Execution history is stored separately, keyed by template ID.
type Template struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	SchemaVersion int         `json:"schemaVersion"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	ExpenseData   ExpenseData `json:"expenseData"`
	Scheduling    *Schedule   `json:"scheduling,omitempty"`
	Metadata      Metadata    `json:"metadata"`
}

// ActivelyScheduled reports whether the template should have a live timer:
// scheduling configured, enabled, not paused, and a next execution computed.
func (t *Template) ActivelyScheduled() bool {
	s := t.Scheduling
	return s != nil && s.Enabled && !s.Paused && s.NextExecution != nil
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Scheduling = t.Scheduling.Clone()
	out.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	if t.Metadata.LastUsed != nil {
		lu := *t.Metadata.LastUsed
		out.Metadata.LastUsed = &lu
	}
	out.ExpenseData.Policy = append(json.RawMessage(nil), t.ExpenseData.Policy...)
	if t.ExpenseData.Details != nil {
		d := *t.ExpenseData.Details
		out.ExpenseData.Details = &d
	}
	if t.ExpenseData.ReportingData != nil {
		rd := make(map[string]any, len(t.ExpenseData.ReportingData))
		for k, v := range t.ExpenseData.ReportingData {
			rd[k] = v
		}
		out.ExpenseData.ReportingData = rd
	}
	return &out
}

// Merchant identifies the payee on an expense.
type Merchant struct {
	Name string `json:"name"`
}

// ExpenseDetails carries optional categorisation fields.
type ExpenseDetails struct {
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExpenseData is the payload handed to the expense service when a template
// fires. Policy carries legacy policy shapes verbatim (a bare string or an
// object with an "id" field); PolicyType is the modern form.
type ExpenseData struct {
	Merchant         Merchant        `json:"merchant"`
	MerchantAmount   decimal.Decimal `json:"merchantAmount"`
	MerchantCurrency string          `json:"merchantCurrency"`
	PolicyType       string          `json:"policyType,omitempty"`
	Policy           json.RawMessage `json:"policy,omitempty"`
	Details          *ExpenseDetails `json:"details,omitempty"`
	ReportingData    map[string]any  `json:"reportingData,omitempty"`
}

// ResolvePolicyType maps legacy policy shapes to a policy type:
// an object with an "id" field wins, then an explicit PolicyType,
// then a bare policy string.
func (d ExpenseData) ResolvePolicyType() string {
	if len(d.Policy) > 0 {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(d.Policy, &obj); err == nil && obj.ID != "" {
			return obj.ID
		}
	}
	if d.PolicyType != "" {
		return d.PolicyType
	}
	if len(d.Policy) > 0 {
		var s string
		if err := json.Unmarshal(d.Policy, &s); err == nil {
			return s
		}
	}
	return ""
}

// Metadata holds per-template bookkeeping maintained by the store.
type Metadata struct {
	SourceExpenseID   string      `json:"sourceExpenseId,omitempty"`
	CreatedFrom       CreatedFrom `json:"createdFrom"`
	Tags              []string    `json:"tags"`
	Favorite          bool        `json:"favorite"`
	UseCount          int         `json:"useCount"`
	ScheduledUseCount int         `json:"scheduledUseCount"`
	LastUsed          *time.Time  `json:"lastUsed,omitempty"`
}

// MetadataEntry is the projection of a template kept in the metadata index.
// The index holds exactly one entry per stored template.
type MetadataEntry struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	HasScheduling bool       `json:"hasScheduling"`
	NextExecution *time.Time `json:"nextExecution,omitempty"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	UseCount      int        `json:"useCount"`
	Tags          []string   `json:"tags"`
	Favorite      bool       `json:"favorite"`
}

// IndexEntry builds the metadata index projection for a template.
func (t *Template) IndexEntry() MetadataEntry {
	e := MetadataEntry{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		LastUsed:  t.Metadata.LastUsed,
		UseCount:  t.Metadata.UseCount,
		Tags:      t.Metadata.Tags,
		Favorite:  t.Metadata.Favorite,
	}
	if t.Scheduling != nil {
		e.HasScheduling = true
		e.NextExecution = t.Scheduling.NextExecution
	}
	return e
}

// ExecutionStatus is the outcome of one firing.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ExecutionType distinguishes scheduled firings from manual applications.
type ExecutionType string

const (
	ExecutionScheduled ExecutionType = "scheduled"
	ExecutionManual    ExecutionType = "manual"
)

// ExecutionRecord describes the outcome of one firing of a template.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	ExecutedAt time.Time       `json:"executedAt"`
	Status     ExecutionStatus `json:"status"`
	ExpenseID  string          `json:"expenseId,omitempty"`
	Error      string          `json:"error,omitempty"`
	Type       ExecutionType   `json:"executionType"`
}

// QueueStatus tracks a queue entry through its lifecycle.
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueInFlight QueueStatus = "in-flight"
	QueueFailed   QueueStatus = "failed"
)

// QueueEntry marks an actively scheduled template. The queue is derived
// state: it is rebuilt in the same transaction that mutates the template,
// and is authoritative for catch-up after a restart.
type QueueEntry struct {
	TemplateID   string      `json:"templateId"`
	ScheduledFor time.Time   `json:"scheduledFor"`
	Status       QueueStatus `json:"status"`
	Attempts     int         `json:"attempts"`
}

// Preferences are user-level settings for the scheduling core.
type Preferences struct {
	DefaultExecutionTime ExecutionTime `json:"defaultExecutionTime"`
	NotificationsEnabled bool          `json:"notificationsEnabled"`
	AutoCleanupEnabled   bool          `json:"autoCleanupEnabled"`
	RetentionDays        int           `json:"retentionDays"`
	Timezone             string        `json:"timezone"`
}

// DefaultPreferences returns the preferences used until the user writes
// their own.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultExecutionTime: ExecutionTime{Hour: 9, Minute: 0},
		NotificationsEnabled: true,
		AutoCleanupEnabled:   true,
		RetentionDays:        90,
		Timezone:             "",
	}
}
