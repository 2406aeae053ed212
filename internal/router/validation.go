package router

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// MessageInvalidMobile is reported for a mobile number that is not 10 digits.
const MessageInvalidMobile = "Mobile number must be 10 digits"

// bcryptMaxBytes is the longest input bcrypt accepts. It counts bytes, so a
// multibyte password hits it with fewer characters.
const bcryptMaxBytes = 72

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

func validateMobile(fieldLevel validator.FieldLevel) bool {
	return mobilePattern.MatchString(fieldLevel.Field().String())
}

func validateBcryptLen(fieldLevel validator.FieldLevel) bool {
	return len(fieldLevel.Field().String()) <= bcryptMaxBytes
}

var customValidations = map[string]validator.Func{
	"mobile":    validateMobile,
	"bcryptlen": validateBcryptLen,
}

func newValidator() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	for tag, fn := range customValidations {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("in internal/router/validation.go/newValidator(): error while `validate.RegisterValidation(%q)` calling: %s", tag, err))
		}
	}

	return validate
}

// validationMessage describes the first failed rule of err.
func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return fmt.Sprintf("Validation Error: %s", err)
	}

	fieldError := validationErrors[0]
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fieldError.Param())
	case "mobile":
		return MessageInvalidMobile
	case "bcryptlen":
		return fmt.Sprintf("%q length must be less than or equal to %d bytes long", field, bcryptMaxBytes)
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
