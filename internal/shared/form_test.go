package shared

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postForm(t *testing.T, values url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, req.ParseForm())
	return req
}

func TestFormReader(t *testing.T) {
	req := postForm(t, url.Values{
		"rent":       {"1 250,50"},
		"bad_amount": {"abc"},
		"start":      {"2024-03-01"},
		"end":        {""},
		"tenant":     {"12"},
		"day":        {"x"},
		"auto":       {"on"},
	})
	f := NewFormReader(req)

	assert.Equal(t, "1250.5", f.Decimal("rent", "Rent").String())
	assert.True(t, f.Decimal("bad_amount", "Amount").IsZero())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.Date("start", "Start"))
	assert.Nil(t, f.OptionalDate("end", "End"))
	assert.Equal(t, int64(12), f.ID("tenant", "TenantID"))
	assert.Equal(t, 1, f.Int("day", "PaymentDay", 1))
	assert.True(t, f.Bool("auto"))
	assert.False(t, f.OptionalDecimal("missing", "Missing").Valid)

	fields := FieldErrors(f.Err())
	assert.Equal(t, "Montant invalide.", fields["Amount"])
	assert.Equal(t, "Nombre entier attendu.", fields["PaymentDay"])
	assert.Len(t, fields, 2)
}

func TestMergeErrors(t *testing.T) {
	merged := MergeErrors(NewValidationError("Amount", "parse"), NewValidationError("Amount", "service"))
	assert.Equal(t, "parse", merged["Amount"])

	merged = MergeErrors(nil, NewPublicError("Refusé."))
	assert.Equal(t, "Refusé.", merged["general"])
}
