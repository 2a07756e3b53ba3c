package expense

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/domain"
)

func fastRetry() ClientOption {
	return WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func samplePayload() Payload {
	return Payload{
		MerchantName:     "Acme Hosting",
		MerchantAmount:   decimal.NewFromInt(29),
		MerchantCurrency: "EUR",
		Date:             "2026-08-26",
	}
}

func TestCreateExpenseSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/expenses", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"exp_42"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"), fastRetry())
	res, err := c.CreateExpense(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "exp_42", res.ExpenseID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "Acme Hosting", gotPayload.MerchantName)
	assert.Equal(t, "2026-08-26", gotPayload.Date)
}

func TestCreateExpenseAcceptsBothIdentifierShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"id field", `{"id":"exp_via_id"}`, "exp_via_id"},
		{"uuid field", `{"uuid":"exp_via_uuid"}`, "exp_via_uuid"},
		{"id wins over uuid", `{"id":"exp_id","uuid":"exp_uuid"}`, "exp_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, StaticToken("tok"), fastRetry())
			res, err := c.CreateExpense(context.Background(), samplePayload())
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.ExpenseID)
		})
	}
}

func TestCreateExpenseRejectsMissingIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"), WithRetry(1, time.Millisecond, time.Millisecond))
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var aerr *APIError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Message, "missing expense identifier")
}

func TestCreateExpenseRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"exp_ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"), fastRetry())
	res, err := c.CreateExpense(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "exp_ok", res.ExpenseID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateExpenseDoesNotRetryValidation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"amount must be positive"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"), fastRetry())
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount must be positive", verr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateExpenseDoesNotRetryAuth(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("expired"), fastRetry())
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusUnauthorized, aerr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateExpenseRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"exp_after_429"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"), fastRetry())
	res, err := c.CreateExpense(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, "exp_after_429", res.ExpenseID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateExpenseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"),
		WithRetry(1, time.Millisecond, time.Millisecond),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var terr *TimeoutError
	assert.ErrorAs(t, err, &terr)
}

func TestWithTimeoutBoundsRequestDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok"),
		WithRetry(1, time.Millisecond, time.Millisecond),
		WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestCreateExpenseNetworkError(t *testing.T) {
	// Nothing listens on this port.
	c := NewClient("http://127.0.0.1:1", StaticToken("tok"), WithRetry(1, time.Millisecond, time.Millisecond))
	_, err := c.CreateExpense(context.Background(), samplePayload())

	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{Status: 500}, true},
		{"rate limited", &APIError{Status: 429}, true},
		{"client error", &APIError{Status: 404}, false},
		{"auth", &AuthError{Status: 401}, false},
		{"validation", &ValidationError{Status: 400}, false},
		{"timeout", &TimeoutError{Err: context.DeadlineExceeded}, true},
		{"network", &NetworkError{Err: assert.AnError}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestPayloadFrom(t *testing.T) {
	tmpl := &domain.Template{
		ID:   "tmpl_1",
		Name: "Lunch",
		ExpenseData: domain.ExpenseData{
			Merchant:         domain.Merchant{Name: "Deli"},
			MerchantAmount:   decimal.NewFromFloat(12.50),
			MerchantCurrency: "USD",
			Policy:           json.RawMessage(`{"id":"pol_7"}`),
			Details: &domain.ExpenseDetails{
				Category:    "meals",
				Description: "team lunch",
			},
		},
	}

	at := time.Date(2026, 8, 26, 12, 30, 0, 0, time.UTC)
	p := PayloadFrom(tmpl, at)

	assert.Equal(t, "Deli", p.MerchantName)
	assert.Equal(t, "2026-08-26", p.Date)
	assert.Equal(t, "pol_7", p.PolicyType)
	assert.Equal(t, "meals", p.Category)
	assert.Equal(t, "team lunch", p.Description)
}
