// Package submission validates mission submission payloads before they enter
// the progression state machine.
package submission

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/domain"
)

// Validator checks a raw submission payload against the mission's type.
type Validator interface {
	Validate(mission domain.Mission, payload string) error
}

// Mission types with a structured payload shape. Anything else falls back to
// a free-form note.
const (
	TypeText  = "text"
	TypeLink  = "link"
	TypeMedia = "media"
)

type textPayload struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

type linkPayload struct {
	URL string `json:"url" validate:"required,url"`
}

type mediaPayload struct {
	FileName string `json:"file_name" validate:"required"`
	Size     int64  `json:"size" validate:"gt=0,lte=26214400"`
}

// PayloadValidator is the default Validator backed by struct tag rules.
type PayloadValidator struct {
	validate *validator.Validate
}

// NewPayloadValidator builds the default submission validator.
func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate parses the payload for the mission's type and applies its rules.
func (v *PayloadValidator) Validate(mission domain.Mission, payload string) error {
	if v == nil || v.validate == nil {
		return engineerrors.New(engineerrors.CodeSubmissionInvalid, "submission validator is not configured")
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return invalid(mission, "submission payload is required")
	}

	var target any
	switch mission.Type {
	case TypeText:
		target = &textPayload{}
	case TypeLink:
		target = &linkPayload{}
	case TypeMedia:
		target = &mediaPayload{}
	default:
		// Free-form note; any non-blank payload passes.
		return nil
	}

	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return invalid(mission, "submission payload is not valid JSON")
	}
	if err := v.validate.Struct(target); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return engineerrors.WithMetadata(engineerrors.CodeSubmissionInvalid,
				"submission payload failed validation",
				map[string]string{
					"mission_id": mission.ID,
					"field":      first.Field(),
					"rule":       first.Tag(),
				})
		}
		return invalid(mission, "submission payload failed validation")
	}
	return nil
}

func invalid(mission domain.Mission, message string) error {
	return engineerrors.WithMetadata(engineerrors.CodeSubmissionInvalid, message,
		map[string]string{"mission_id": mission.ID})
}
