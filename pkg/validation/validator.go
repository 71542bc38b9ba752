package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the tenant rules registered
type Validator struct {
	v *validator.Validate
}

// FieldError describes one failed rule on a request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Errors is returned by Struct when one or more fields fail
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		if fe.Param != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field, fe.Rule, fe.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field, fe.Rule))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// New creates a Validator. Field names in errors follow json tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	rules := map[string]func(string) error{
		"tenant_name": TenantName,
		"subdomain":   func(s string) error { return Subdomain(NormalizeSubdomain(s)) },
		"emoji":       Emoji,
	}
	for tag, rule := range rules {
		rule := rule
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return rule(fl.Field().String()) == nil
		})
	}

	return &Validator{v: v}
}

// Struct validates s by its validate tags
func (val *Validator) Struct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		// drop the root struct name, keep nested paths like users[1].email
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Var validates a single value against a tag
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}
