package common

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// usernamePattern allows letters, digits and @ . + - _ so that profile URLs always route.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})

		// Report form field names instead of Go struct field names.
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.Split(field.Tag.Get("form"), ",")[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	}
}

// BindNormalized binds the request into obj, runs normalize on the decoded values and only
// then validates, so that trimmed fields are checked as they will be stored.
func BindNormalized(c *gin.Context, obj any, normalize func()) error {
	if err := c.ShouldBindWith(obj, binding.Default(c.Request.Method, c.ContentType())); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return err
		}
	}
	if normalize != nil {
		normalize()
	}
	return binding.Validator.ValidateStruct(obj)
}

// BindingErrors turns the error from c.ShouldBind into per-field form messages. Errors that
// are not validation failures are reported against the "form" field.
func BindingErrors(err error) *ValidationError {
	v := NewValidationError()
	if err == nil {
		return v
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		v.Add("form", "The submitted form could not be read.")
		return v
	}

	for _, fe := range fieldErrors {
		v.Add(fe.Field(), fieldMessage(fe))
	}
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "The two password fields didn't match."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	}
	return "Enter a valid value."
}
