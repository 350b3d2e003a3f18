// Package extraction validates the model's partial output for a turn and
// folds it into the work item being collected.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSchema marks model output that failed decoding or validation.
var ErrInvalidSchema = errors.New("extracted data failed schema validation")

// Countermeasure as emitted by the model.
type Countermeasure struct {
	Category string `json:"category" validate:"required,oneof=equipment behavior ppe"`
	Text     string `json:"text"`
}

// ExtractedData is every field the model may return for one turn. All
// fields are optional; present fields must have the right type and range.
type ExtractedData struct {
	WorkDescription   *string          `json:"workDescription,omitempty"`
	HazardDescription *string          `json:"hazardDescription,omitempty"`
	RiskLevel         *int             `json:"riskLevel,omitempty" validate:"omitempty,min=1,max=5"`
	WhyDangerous      []string         `json:"whyDangerous,omitempty"`
	Countermeasures   []Countermeasure `json:"countermeasures,omitempty" validate:"omitempty,dive"`
	ActionGoal        *string          `json:"actionGoal,omitempty"`
	NextAction        store.NextAction `json:"nextAction,omitempty" validate:"omitempty,oneof=ask_work ask_hazard ask_why ask_countermeasure ask_risk_level ask_more_work ask_goal confirm completed"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Parse decodes raw JSON into ExtractedData and validates it. An absent or
// null payload yields (nil, nil).
func Parse(raw []byte) (*ExtractedData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidSchema)
	}

	var data ExtractedData
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := Validate(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate runs the field rules on already-decoded data.
func Validate(data *ExtractedData) error {
	if data == nil {
		return nil
	}
	if err := getValidator().Struct(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return nil
}

// CommitIntent reports whether the next action means the model considers
// the current work item finished.
func CommitIntent(next store.NextAction) bool {
	switch next {
	case store.NextAskMoreWork, store.NextAskGoal, store.NextConfirm, store.NextCompleted:
		return true
	}
	return false
}
