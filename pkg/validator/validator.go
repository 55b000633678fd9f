package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/roshita-planner/internal/i18n"
	"github.com/jwalitptl/roshita-planner/internal/model"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(value interface{}, rules string) error
}

// Rules holds the planner's custom tags.
var Rules = map[string]validator.Func{
	"service_type": serviceType,
	"language":     language,
}

type wrapped struct {
	v *validator.Validate
}

func New() Validator {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return &wrapped{v: v}
}

// Register adds Rules to v and reports fields by their json name.
func Register(v *validator.Validate) error {
	for tag, fn := range Rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return nil
}

func (w *wrapped) Validate(obj interface{}) error {
	return w.v.Struct(obj)
}

func (w *wrapped) ValidateField(value interface{}, rules string) error {
	return w.v.Var(value, rules)
}

// serviceType accepts Shelter, Shelter_Operation, Operation and the
// "Shelter Operation" display form.
func serviceType(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := model.ParseServiceType(s)
	return ok
}

func language(fl validator.FieldLevel) bool {
	return i18n.Supported(fl.Field().String())
}
