package handler

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"citizen-voice/internal/model"
	"citizen-voice/pkg/apierror"
)

var personNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} .'-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseCategory(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("complaintstatus", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseComplaintStatus(fl.Field().String())
		return ok
	})

	return v
}

// isStrongPassword requires an upper case letter, a lower case letter and a digit.
func isStrongPassword(password string) bool {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

var validationMessages = map[string]string{
	"required":        "is required",
	"email":           "must be a valid email address",
	"min":             "is too short",
	"max":             "is too long",
	"len":             "has the wrong length",
	"oneof":           "has an unsupported value",
	"hexadecimal":     "must be hexadecimal",
	"personname":      "may only contain letters, spaces, apostrophes and hyphens",
	"strongpassword":  "must contain an upper case letter, a lower case letter and a digit",
	"category":        "is not a known category",
	"complaintstatus": "is not a known complaint status",
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierror.Validation("invalid request", "")
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message, ok := validationMessages[fe.Tag()]
		if !ok {
			message = "is invalid"
		}
		details = append(details, fe.Field()+" "+message)
	}
	sort.Strings(details)

	return apierror.Validation("request validation failed", strings.Join(details, "; "))
}
