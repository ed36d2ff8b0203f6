// README: Binding tags for gin request structs backed by the validators above.
package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// RegisterRules adds the cnic, pkphone, person and httpurl tags.
func RegisterRules(v *validator.Validate) error {
	rules := map[string]func(string) Result{
		"cnic":    CNIC,
		"pkphone": Phone,
		"person":  Name,
		"httpurl": URL,
	}
	for tag, check := range rules {
		check := check
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String()).Valid
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Describe turns binding failures into the same messages the pure checks use.
func Describe(err error) (field, message string, ok bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "", "", false
	}
	fe := ve[0]
	value, _ := fe.Value().(string)
	switch fe.Tag() {
	case "cnic":
		return fe.Field(), CNIC(value).Message, true
	case "pkphone":
		return fe.Field(), Phone(value).Message, true
	case "person":
		return fe.Field(), Name(value).Message, true
	case "httpurl":
		return fe.Field(), URL(value).Message, true
	case "required":
		return fe.Field(), fe.Field() + " is required", true
	case "email":
		return fe.Field(), Email(value).Message, true
	case "min", "max", "gte", "lte":
		return fe.Field(), fe.Field() + " is out of range", true
	case "oneof":
		return fe.Field(), fe.Field() + " must be one of: " + fe.Param(), true
	}
	return fe.Field(), fe.Field() + " is invalid", true
}
