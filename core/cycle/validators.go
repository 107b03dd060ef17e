package cycle

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/wakora/hatua/core"
)

var (
	positiveHoursTag  = "poshours"
	positiveHoursText = "hours must be greater than zero"
)

// InitValidators registers the cycle-specific validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterCustomTranslation(validate, translator, positiveHoursTag, positiveHoursText)
	_ = validate.RegisterValidation(positiveHoursTag, func(fl validator.FieldLevel) bool {
		return fl.Field().Float() > 0
	})
}

// NewCommit contains the information needed to submit a weekly commitment.
type NewCommit struct {
	Goal          string  `json:"goal" validate:"required"`
	TargetRevenue float64 `json:"target_revenue" validate:"required,gt=0"`
	PlannedHours  float64 `json:"planned_hours" validate:"required,poshours"`
}

func (nc *NewCommit) Validate(validate *validator.Validate) error {
	nc.Goal = core.CleanString(nc.Goal)
	return validate.Struct(nc)
}

// NewReport contains the information needed to submit a weekly report.
// Evidence presence is handled by the submission path (an evidence-less
// report is recorded as rejected, not dropped), so the slice itself is
// omitempty here.
type NewReport struct {
	RevenueGenerated float64  `json:"revenue_generated" validate:"gte=0"`
	HoursSpent       float64  `json:"hours_spent" validate:"required,poshours"`
	EvidenceURLs     []string `json:"evidence_urls" validate:"omitempty,dive,required,url"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	for i, u := range nr.EvidenceURLs {
		nr.EvidenceURLs[i] = core.CleanString(u)
	}
	return validate.Struct(nr)
}

// NewAdjustment contains the information needed to submit the end-of-week
// adjustment.
type NewAdjustment struct {
	KeepDoing  string `json:"keep_doing" validate:"required"`
	StopDoing  string `json:"stop_doing" validate:"required"`
	ChangeNext string `json:"change_next" validate:"required"`
}

func (na *NewAdjustment) Validate(validate *validator.Validate) error {
	na.KeepDoing = core.CleanString(na.KeepDoing)
	na.StopDoing = core.CleanString(na.StopDoing)
	na.ChangeNext = core.CleanString(na.ChangeNext)
	return validate.Struct(na)
}
