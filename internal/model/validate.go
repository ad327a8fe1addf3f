package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gitlab.com/dirk.krummacker/customers-service/internal/apperr"
	"golang.org/x/text/cases"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance returns the shared validator. Field errors are reported with their JSON names.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a create or update shape against its constraints: the name is required and at
// most 225 characters long, the phone number is required. It returns an apperr.ValidationFailed
// error describing every violated constraint.
func Validate(shape any) error {
	err := validatorInstance().Struct(shape)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apperr.Wrap(apperr.ValidationFailed, err, "invalid customer")
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, describe(fe))
	}
	return apperr.New(apperr.ValidationFailed, "invalid customer: %s", strings.Join(messages, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q constraint", fe.Field(), fe.Tag())
	}
}

// FoldName returns the case-folded form of a customer name. Two names are considered equal for
// uniqueness purposes if their folded forms are equal.
func FoldName(name string) string {
	return cases.Fold().String(name)
}
