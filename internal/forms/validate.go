package forms

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type contactForm struct {
	Name    string `form:"name" validate:"required,max=120"`
	Email   string `form:"email" validate:"required,email,max=254"`
	Phone   string `form:"phone" validate:"omitempty,max=40"`
	Message string `form:"message" validate:"required,max=5000"`
}

type quoteForm struct {
	Name    string `form:"name" validate:"required,max=120"`
	Email   string `form:"email" validate:"required,email,max=254"`
	Phone   string `form:"phone" validate:"omitempty,max=40"`
	Company string `form:"company" validate:"omitempty,max=200"`
	Budget  string `form:"budget" validate:"omitempty,max=100"`
	Message string `form:"message" validate:"required,max=5000"`
}

type supportForm struct {
	Name    string `form:"name" validate:"required,max=120"`
	Email   string `form:"email" validate:"required,email,max=254"`
	Subject string `form:"subject" validate:"required,max=200"`
	Message string `form:"message" validate:"required,max=5000"`
}

// kinds maps the {kind} route parameter to its form schema.
var kinds = map[string]reflect.Type{
	"contact": reflect.TypeOf(contactForm{}),
	"quote":   reflect.TypeOf(quoteForm{}),
	"support": reflect.TypeOf(supportForm{}),
}

// Kinds lists the accepted form kinds.
func Kinds() []string {
	return []string{"contact", "quote", "support"}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	return v
}

// bind copies the schema's fields out of raw and validates them. It returns
// only the schema fields, so unknown and honeypot fields never reach a sink.
// Invalid input yields a map of field name to failed rule.
func bind(kind string, raw map[string]string) (map[string]string, map[string]string, error) {
	typ, ok := kinds[kind]
	if !ok {
		return nil, nil, errors.New("unknown form kind " + kind)
	}

	pv := reflect.New(typ)
	sv := pv.Elem()
	fields := make(map[string]string, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Tag.Get("form")
		val := strings.TrimSpace(raw[name])
		sv.Field(i).SetString(val)
		if val != "" {
			fields[name] = val
		}
	}

	if err := validate.Struct(pv.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, nil, err
		}
		problems := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			problems[fe.Field()] = fe.Tag()
		}
		return nil, problems, nil
	}
	return fields, nil, nil
}
