package middleware

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/wms-platform/shipping-service/pkg/errors"
)

var validateOnce sync.Once

var (
	countryCodeRegex  = regexp.MustCompile(`^[A-Za-z]{2}$`)
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	decimalRegex      = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// RegisterValidators registers the shipping validators on v.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("country_code", func(fl validator.FieldLevel) bool {
		return countryCodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
		return currencyCodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		return decimalRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers custom validators on gin's binding engine.
func InitValidator() {
	validateOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			RegisterValidators(v)
		}
	})
}

// ValidationErrorFormatter formats validation errors into a map
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "country_code":
		return "must be an ISO 3166-1 alpha-2 country code"
	case "currency_code":
		return "must be an ISO 4217 currency code"
	case "decimal":
		return "must be a decimal number"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if stderrors.As(err, &validationErrors) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(err))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
