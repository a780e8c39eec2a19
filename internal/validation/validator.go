package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/resto-orderflow/internal/orderflow"
)

// New returns a configured validator with custom validations registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// order_status restricts a field to the defined lifecycle statuses, so
	// junk values are rejected at the edge before reaching the engine.
	_ = v.RegisterValidation("order_status", func(fl validatorv10.FieldLevel) bool {
		return orderflow.KnownStatus(fl.Field().String())
	})

	return v
}
