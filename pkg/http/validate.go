package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationErrors is what a rejected request body turns into. It is sent as
// the data of a 400 response.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ReadAndValidateRequest binds the body into req, fills `default` tags and
// checks `validate` tags.
func ReadAndValidateRequest(c echo.Context, req interface{}) ValidationErrors {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return ValidationErrors{{Code: "ERR_BODY", Message: fmt.Sprint(he.Message)}}
		}
		return ValidationErrors{{Code: "ERR_BODY", Message: err.Error()}}
	}
	return ApplyDefaultsAndValidate(c.Request().Context(), req)
}

// ApplyDefaultsAndValidate does the same for a request decoded elsewhere,
// such as a queued job payload or CLI flags.
func ApplyDefaultsAndValidate(ctx context.Context, req interface{}) ValidationErrors {
	if err := defaults.Set(req); err != nil {
		return ValidationErrors{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	err := validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return ValidationErrors{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fes))
	for _, fe := range fes {
		out = append(out, fieldError(fe))
	}
	return out
}

// ValidationErrorsString flattens validation errors into one message.
func ValidationErrorsString(v ValidationErrors) string {
	return v.Error()
}

// ruleText holds the message template and the name of the param for each
// rule with a fixed wording. %[1]s is the field, %[2]s the rule param.
var ruleText = map[string]struct{ format, param string }{
	"required":         {"%[1]s is required", ""},
	"uuid":             {"%[1]s must be a valid UUID", ""},
	"required_without": {"%[1]s is required when %[2]s is empty", "field"},
	"gt":               {"%[1]s must be greater than %[2]s", "value"},
	"gte":              {"%[1]s must be greater than or equal to %[2]s", "min"},
	"lt":               {"%[1]s must be less than %[2]s", "value"},
	"lte":              {"%[1]s must be less than or equal to %[2]s", "max"},
}

func fieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:   "ERR_" + strings.ToUpper(fe.Tag()),
		Field:  fe.Field(),
		Params: map[string]interface{}{},
	}
	field, param := fe.Field(), fe.Param()

	switch tag := fe.Tag(); tag {
	case "min", "max":
		bound := "at least"
		if tag == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			ve.Message = fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		case reflect.Slice, reflect.Array, reflect.Map:
			ve.Message = fmt.Sprintf("%s must have %s %s items", field, bound, param)
		default:
			ve.Message = fmt.Sprintf("%s must be %s %s", field, bound, param)
		}
		ve.Params[tag] = param
	case "oneof":
		opts := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
		ve.Params["options"] = opts
	default:
		rt, ok := ruleText[tag]
		if !ok {
			ve.Message = fmt.Sprintf("%s failed validation: %s", field, tag)
			break
		}
		ve.Message = fmt.Sprintf(rt.format, field, param)
		if rt.param != "" {
			ve.Params[rt.param] = param
		}
	}
	if len(ve.Params) == 0 {
		ve.Params = nil
	}
	return ve
}
