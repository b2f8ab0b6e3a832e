package rulestorage

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// specValidator wraps a single shared *validator.Validate: one validator
// instance, struct tags carry the invariants, callers get a plain error
// back instead of hand-rolled if-chains.
type specValidator struct {
	validate *validator.Validate
}

func newSpecValidator() *specValidator {
	return &specValidator{validate: validator.New()}
}

// Validate checks a ScaleSpec's struct tags (see scaler.ScaleSpec): struct
// tags already cover minSize<=maxSize, minIdleToKeep<=maxIdleToKeep, and the
// non-negativity bounds. ClusterID/SkuID consistency with the caller's
// expectations is left to callers.
func (v *specValidator) Validate(spec scaler.ScaleSpec) error {
	if err := v.validate.Struct(spec); err != nil {
		return fmt.Errorf("malformed scale spec for sku %s: %w", spec.SkuID, err)
	}
	return nil
}
