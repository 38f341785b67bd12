package domain

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Required slot names for a refill request.
const (
	SlotPatientID = "patient_id"
	SlotDrugName  = "drug_name"
	SlotDose      = "dose"
	SlotQuantity  = "quantity"
	SlotFrequency = "frequency"

	// SlotTurn is the pseudo-slot counting turn-level clarification
	// retries (low-confidence re-prompts not tied to one slot).
	SlotTurn = "turn"
)

var (
	mrnPattern  = regexp.MustCompile(`^\d{6,8}$`)
	dosePattern = regexp.MustCompile(`^\d+(\.\d+)?\s*(mg|mcg|g|mL)$`)
)

// RefillSlots is the typed view of the collected entity map.
type RefillSlots struct {
	PatientID string `mapstructure:"patient_id"`
	DrugName  string `mapstructure:"drug_name"`
	Dose      string `mapstructure:"dose"`
	Quantity  string `mapstructure:"quantity"`
	// Frequency is optional (dosing schedule, e.g. "daily").
	Frequency string `mapstructure:"frequency"`
}

// DecodeSlots builds a typed slot view from the session's entity map.
func DecodeSlots(entities map[string]string) (RefillSlots, error) {
	var s RefillSlots
	if err := mapstructure.Decode(entities, &s); err != nil {
		return RefillSlots{}, fmt.Errorf("decode slots: %w", err)
	}
	return s, nil
}

// Missing returns the required slots not yet filled, in a fixed order.
func (s RefillSlots) Missing() []string {
	var missing []string
	if s.PatientID == "" {
		missing = append(missing, SlotPatientID)
	}
	if s.DrugName == "" {
		missing = append(missing, SlotDrugName)
	}
	if s.Dose == "" {
		missing = append(missing, SlotDose)
	}
	if s.Quantity == "" {
		missing = append(missing, SlotQuantity)
	}
	return missing
}

// Complete reports whether every required slot is filled.
func (s RefillSlots) Complete() bool {
	return len(s.Missing()) == 0
}

// ValidateSlotValue checks a single slot value's format in isolation.
// Slots without a format rule (drug_name, frequency) always pass.
func ValidateSlotValue(slot, value string) error {
	switch slot {
	case SlotPatientID:
		return RefillSlots{PatientID: value}.Validate()
	case SlotDose:
		return RefillSlots{Dose: value}.Validate()
	case SlotQuantity:
		return RefillSlots{Quantity: value}.Validate()
	}
	return nil
}

// Validate checks the format of filled slots. Empty slots are not errors
// here; completeness is Missing's job.
func (s RefillSlots) Validate() error {
	if s.PatientID != "" && !mrnPattern.MatchString(s.PatientID) {
		return fmt.Errorf("patient_id: MRN must be 6-8 digits")
	}
	if s.Dose != "" && !dosePattern.MatchString(s.Dose) {
		return fmt.Errorf("dose: expected value with unit (mg, mcg, g, mL)")
	}
	if s.Quantity != "" {
		n, err := strconv.Atoi(s.Quantity)
		if err != nil || n <= 0 || n > 365 {
			return fmt.Errorf("quantity: must be 1-365")
		}
	}
	return nil
}
