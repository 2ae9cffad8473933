package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SlotTypeKind identifies the declared type of a flow slot value.
type SlotTypeKind string

const (
	SlotInt         SlotTypeKind = "int"
	SlotFloat       SlotTypeKind = "float"
	SlotBool        SlotTypeKind = "bool"
	SlotText        SlotTypeKind = "str"
	SlotCategorical SlotTypeKind = "categorical"
)

// SlotType is the declared type of a slot, with the fixed value set for
// categorical slots.
type SlotType struct {
	Kind       SlotTypeKind `json:"type"`
	Categories []string     `json:"categories,omitempty"`
}

// Convenience constructors for the non-categorical slot types.
var (
	TypeInt   = SlotType{Kind: SlotInt}
	TypeFloat = SlotType{Kind: SlotFloat}
	TypeBool  = SlotType{Kind: SlotBool}
	TypeText  = SlotType{Kind: SlotText}
)

// Categorical declares a slot type with a fixed set of allowed values.
func Categorical(categories ...string) SlotType {
	return SlotType{Kind: SlotCategorical, Categories: categories}
}

// Valid reports whether the kind is one of the declared slot type kinds.
func (t SlotType) Valid() bool {
	switch t.Kind {
	case SlotInt, SlotFloat, SlotBool, SlotText:
		return true
	case SlotCategorical:
		return len(t.Categories) > 0
	default:
		return false
	}
}

// FlowSlot declares a named value a flow needs filled. Defaults are part
// of the type's fixed shape: required is true and ask_before_filling is
// false unless declared otherwise.
type FlowSlot struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Type             SlotType `json:"type"`
	AskBeforeFilling bool     `json:"ask_before_filling,omitempty"`
	Required         bool     `json:"required"`
}

// NewSlot constructs a required slot of the given type.
func NewSlot(name, description string, slotType SlotType) FlowSlot {
	return FlowSlot{
		Name:        name,
		Description: description,
		Type:        slotType,
		Required:    true,
	}
}

// Optional returns a copy of the slot marked as not required.
func (s FlowSlot) Optional() FlowSlot {
	s.Required = false
	return s
}

// AlwaysAsk returns a copy of the slot that must be asked even when a
// value was supplied proactively.
func (s FlowSlot) AlwaysAsk() FlowSlot {
	s.AskBeforeFilling = true
	return s
}

// Equal compares slots by name, matching the identity rule of the wire
// format.
func (s FlowSlot) Equal(other FlowSlot) bool {
	return s.Name == other.Name
}

// UnmarshalJSON fills in the required default for entries persisted
// without the field.
func (s *FlowSlot) UnmarshalJSON(data []byte) error {
	type alias struct {
		Name             string   `json:"name"`
		Description      string   `json:"description"`
		Type             SlotType `json:"type"`
		AskBeforeFilling bool     `json:"ask_before_filling"`
		Required         *bool    `json:"required"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.Name = a.Name
	s.Description = a.Description
	s.Type = a.Type
	s.AskBeforeFilling = a.AskBeforeFilling
	s.Required = a.Required == nil || *a.Required
	return nil
}

// Coerce converts a raw classifier-provided value into the canonical
// stored string form for the slot's type. The returned ambiguous flag is
// set when a categorical value matched more than one allowed value; the
// first match is used.
func (s FlowSlot) Coerce(raw string) (value string, ambiguous bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false, fmt.Errorf("slot %q: empty value: %w", s.Name, ErrBadSlotValue)
	}

	switch s.Type.Kind {
	case SlotInt:
		digits := extractNumber(trimmed, false)
		if _, convErr := strconv.Atoi(digits); convErr != nil {
			return "", false, fmt.Errorf("slot %q: %q is not an integer: %w", s.Name, raw, ErrBadSlotValue)
		}
		return digits, false, nil
	case SlotFloat:
		digits := extractNumber(trimmed, true)
		if _, convErr := strconv.ParseFloat(digits, 64); convErr != nil {
			return "", false, fmt.Errorf("slot %q: %q is not a number: %w", s.Name, raw, ErrBadSlotValue)
		}
		return digits, false, nil
	case SlotBool:
		truth, ok := parseTruthWord(trimmed)
		if !ok {
			return "", false, fmt.Errorf("slot %q: %q is not a yes/no answer: %w", s.Name, raw, ErrBadSlotValue)
		}
		return strconv.FormatBool(truth), false, nil
	case SlotText:
		return trimmed, false, nil
	case SlotCategorical:
		matches := matchCategories(s.Type.Categories, trimmed)
		if len(matches) == 0 {
			return "", false, fmt.Errorf("slot %q: %q is not one of the allowed values: %w", s.Name, raw, ErrBadSlotValue)
		}
		return matches[0], len(matches) > 1, nil
	default:
		return "", false, fmt.Errorf("slot %q: invalid slot type %q: %w", s.Name, s.Type.Kind, ErrBadSlotValue)
	}
}

// Parse converts a stored string value into the Go value matching the
// slot's declared type.
func (s FlowSlot) Parse(stored string) (any, error) {
	switch s.Type.Kind {
	case SlotInt:
		v, err := strconv.Atoi(stored)
		if err != nil {
			return nil, fmt.Errorf("slot %q: stored value %q: %w", s.Name, stored, ErrBadSlotValue)
		}
		return v, nil
	case SlotFloat:
		v, err := strconv.ParseFloat(stored, 64)
		if err != nil {
			return nil, fmt.Errorf("slot %q: stored value %q: %w", s.Name, stored, ErrBadSlotValue)
		}
		return v, nil
	case SlotBool:
		v, err := strconv.ParseBool(stored)
		if err != nil {
			return nil, fmt.Errorf("slot %q: stored value %q: %w", s.Name, stored, ErrBadSlotValue)
		}
		return v, nil
	default:
		return stored, nil
	}
}

// extractNumber pulls the first numeric token out of a free-form answer,
// so "20 euros" coerces to "20" and "about -3.5" to "-3.5".
func extractNumber(raw string, decimal bool) string {
	var b strings.Builder
	started := false
	dotted := false
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			started = true
			b.WriteRune(r)
		case r == '-' && !started && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '9':
			b.WriteRune(r)
		case r == '.' && decimal && started && !dotted:
			dotted = true
			b.WriteRune(r)
		default:
			if started {
				return b.String()
			}
			b.Reset()
			dotted = false
		}
	}
	return b.String()
}

func parseTruthWord(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on", "y", "sure", "ok", "okay":
		return true, true
	case "false", "0", "no", "off", "n", "nope":
		return false, true
	default:
		return false, false
	}
}

// matchCategories returns the allowed values matched case-insensitively
// by the raw answer, exact matches first.
func matchCategories(categories []string, raw string) []string {
	var exact, partial []string
	lower := strings.ToLower(raw)
	for _, cat := range categories {
		catLower := strings.ToLower(cat)
		switch {
		case catLower == lower:
			exact = append(exact, cat)
		case strings.Contains(catLower, lower) || strings.Contains(lower, catLower):
			partial = append(partial, cat)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}
