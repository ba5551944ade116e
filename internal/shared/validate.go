package shared

import (
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	// MinPasswordLength counts characters, not bytes.
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	return v
}

// ValidPassword reports whether pw has at least MinPasswordLength characters
// and fits in MaxPasswordBytes.
func ValidPassword(pw string) bool {
	return utf8.RuneCountInString(pw) >= MinPasswordLength && len(pw) <= MaxPasswordBytes
}

// ValidateStruct runs validator tags on s and converts failures into a
// ValidationError keyed by struct field name.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), validationMessage(fe))
	}
	return out.OrNil()
}

func validationMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required", "required_if":
		return "Champ obligatoire."
	case "email":
		return "Adresse email invalide."
	case "min":
		if isString {
			return fmt.Sprintf("Au moins %s caractères.", fe.Param())
		}
		return fmt.Sprintf("Doit être au moins %s.", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("Au plus %s caractères.", fe.Param())
		}
		return fmt.Sprintf("Doit être au plus %s.", fe.Param())
	case "oneof":
		return "Valeur non autorisée."
	case "gt":
		return fmt.Sprintf("Doit être supérieur à %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Doit être supérieur ou égal à %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Doit être inférieur ou égal à %s.", fe.Param())
	case "password":
		return fmt.Sprintf("Entre %d caractères et %d octets.", MinPasswordLength, MaxPasswordBytes)
	case "len":
		return fmt.Sprintf("Doit contenir %s caractères.", fe.Param())
	}
	return "Valeur invalide."
}
