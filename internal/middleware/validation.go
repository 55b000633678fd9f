package middleware

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/roshita-planner/pkg/httputil"
	pkgvalidator "github.com/jwalitptl/roshita-planner/pkg/validator"
)

// ValidationConfig represents validation middleware configuration
type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomValidators: pkgvalidator.Rules,
		CustomErrorMessages: map[string]string{
			"required":     "Field is required",
			"gt":           "Value must be positive",
			"oneof":        "Value is not allowed",
			"service_type": "Must be Shelter, Shelter_Operation or Operation",
			"language":     "Must be ar or en",
		},
	}
}

// Validation registers the planner's binding rules with gin and turns binding
// failures attached with c.Error into a 400 listing each rejected field.
func Validation(config ValidationConfig) gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := pkgvalidator.Register(v); err != nil {
			panic(err)
		}
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		var fields []httputil.FieldError
		for _, err := range c.Errors {
			var errs validator.ValidationErrors
			if !stderrors.As(err.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = e.Error()
				}
				fields = append(fields, httputil.FieldError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		if len(fields) > 0 {
			httputil.RespondWithValidation(c, fields)
		}
	}
}
