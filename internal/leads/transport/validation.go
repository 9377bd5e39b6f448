package transport

import (
	"github.com/go-playground/validator/v10"

	"lead_dispatch_backend/internal/leads/domain"
	platformvalidator "lead_dispatch_backend/platform/validator"
)

// RegisterValidators adds the leadstage and closereason tags.
func RegisterValidators(v *platformvalidator.Validator) error {
	if err := v.RegisterValidation("leadstage", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseStage(fl.Field().String())
		return ok
	}); err != nil {
		return err
	}
	return v.RegisterValidation("closereason", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseCloseReason(fl.Field().String())
		return ok
	})
}
