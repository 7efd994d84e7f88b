package api

import (
	"reflect"
	"strings"

	"thoth/pkg/domain"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCreate checks the structural rules on the predefined fields and
// then the custom metadata keys.
func validateCreate(v *validator.Validate, params *domain.CreateParams) error {
	if err := v.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return err
	}
	return params.Environment.ValidateCustom()
}
func describe(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "CreateParams.")
	switch fe.Tag() {
	case "required":
		return errors.Errorf("%s is required", field)
	case "max":
		return errors.Errorf("%s must be at most %s characters", field, fe.Param())
	}
	return errors.Errorf("%s failed %s validation", field, fe.Tag())
}
