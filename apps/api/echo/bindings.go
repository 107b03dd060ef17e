package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/wakora/hatua/core"
)

type SuccessResponse struct {
	Success string `json:"success"`
}

// LockRequest covers both manual lock and unlock actions.
type LockRequest struct {
	Rationale string `json:"rationale" validate:"required"`
}

func (r *LockRequest) Validate(validate *validator.Validate) error {
	r.Rationale = core.CleanString(r.Rationale)
	return validate.Struct(r)
}

type RSDRequest struct {
	Completion float64 `json:"completion" validate:"gte=0,lte=100"`
}

func (r *RSDRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
