package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so field errors line up with the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator exposes the shared validator for the HTTP layer.
func Validator() *validator.Validate { return validate }

// validateStruct runs the struct tags of s and converts failures into a
// field-scoped validation *Error.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + fe.Field() + " field is required."
	case "email":
		return "The email must be a valid email address."
	case "min":
		return "The " + fe.Field() + " must be at least " + fe.Param() + " characters."
	case "max":
		return "The " + fe.Field() + " may not be greater than " + fe.Param() + " characters."
	case "gte", "gt":
		return "The " + fe.Field() + " is too small."
	case "oneof":
		return "The " + fe.Field() + " must be one of " + fe.Param() + "."
	default:
		return "The " + fe.Field() + " is invalid."
	}
}
