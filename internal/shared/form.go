package shared

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormReader reads typed values from a parsed form, collecting conversion
// failures as field errors keyed like the service validation errors.
type FormReader struct {
	r      *http.Request
	Errors *ValidationError
}

// NewFormReader wraps r. Call r.ParseForm first.
func NewFormReader(r *http.Request) *FormReader {
	return &FormReader{r: r, Errors: &ValidationError{}}
}

// String returns the trimmed value.
func (f *FormReader) String(name string) string {
	return strings.TrimSpace(f.r.PostFormValue(name))
}

// Bool reports whether a checkbox was ticked.
func (f *FormReader) Bool(name string) bool {
	switch strings.ToLower(f.String(name)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ID parses a select value; blank yields 0.
func (f *FormReader) ID(name, field string) int64 {
	raw := f.String(name)
	if raw == "" {
		return 0
	}
	id, ok := ParseID(raw)
	if !ok {
		f.Errors.Add(field, "Sélection invalide.")
	}
	return id
}

// Int parses an integer, returning def when blank.
func (f *FormReader) Int(name, field string, def int) int {
	raw := f.String(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		f.Errors.Add(field, "Nombre entier attendu.")
		return def
	}
	return v
}

// Decimal parses an amount; blank yields zero.
func (f *FormReader) Decimal(name, field string) decimal.Decimal {
	raw := f.String(name)
	if raw == "" {
		return decimal.Zero
	}
	d, err := ParseAmount(raw)
	if err != nil {
		f.Errors.Add(field, "Montant invalide.")
		return decimal.Zero
	}
	return d
}

// OptionalDecimal parses an amount that may be left blank.
func (f *FormReader) OptionalDecimal(name, field string) decimal.NullDecimal {
	if f.String(name) == "" {
		return decimal.NullDecimal{}
	}
	d := f.Decimal(name, field)
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Date parses a YYYY-MM-DD value; blank yields the zero time.
func (f *FormReader) Date(name, field string) time.Time {
	raw := f.String(name)
	if raw == "" {
		return time.Time{}
	}
	t, err := ParseDate(raw)
	if err != nil {
		f.Errors.Add(field, "Date invalide.")
		return time.Time{}
	}
	return t
}

// OptionalDate parses a date that may be left blank.
func (f *FormReader) OptionalDate(name, field string) *time.Time {
	t := f.Date(name, field)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Err returns the collected conversion errors, or nil.
func (f *FormReader) Err() error {
	return f.Errors.OrNil()
}

// MergeErrors combines form conversion errors with service errors for display.
// Non-validation errors are returned under the "general" key.
func MergeErrors(parse, service error) map[string]string {
	out := map[string]string{}
	for k, v := range FieldErrors(parse) {
		out[k] = v
	}
	if service != nil {
		if fields := FieldErrors(service); fields != nil {
			for k, v := range fields {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		} else {
			out["general"] = UserSafeMessage(service)
		}
	}
	return out
}
