package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueState distinguishes the three ways a measurement can be missing or
// present. "Not observed" and "suppressed" are different facts: a suppressed
// count exists upstream but was withheld for small populations, and must
// never be coerced to zero because that corrupts percentage and entropy
// denominators.
type ValueState int

const (
	// NotObserved means no source row carried this measurement.
	NotObserved ValueState = iota
	// Observed means the measurement was directly reported (zero included).
	Observed
	// Suppressed means the source withheld the measurement deliberately.
	Suppressed
)

// String returns the string representation of the state
func (s ValueState) String() string {
	switch s {
	case Observed:
		return "observed"
	case Suppressed:
		return "suppressed"
	default:
		return "not_observed"
	}
}

// Value is a tagged optional scalar. The zero Value is NotObserved.
type Value struct {
	state ValueState
	v     float64
}

// ObservedValue wraps a directly reported measurement (zero is a valid observation).
func ObservedValue(v float64) Value {
	return Value{state: Observed, v: v}
}

// MissingValue returns a not-observed Value.
func MissingValue() Value {
	return Value{state: NotObserved}
}

// SuppressedValue returns a suppressed Value.
func SuppressedValue() Value {
	return Value{state: Suppressed}
}

// State returns the observation state.
func (v Value) State() ValueState {
	return v.state
}

// IsObserved reports whether the value was directly reported.
func (v Value) IsObserved() bool {
	return v.state == Observed
}

// IsSuppressed reports whether the value was withheld upstream.
func (v Value) IsSuppressed() bool {
	return v.state == Suppressed
}

// IsMissing reports whether no usable scalar is available (not observed or
// suppressed).
func (v Value) IsMissing() bool {
	return v.state != Observed
}

// Float returns the scalar and true when observed, 0 and false otherwise.
func (v Value) Float() (float64, bool) {
	if v.state != Observed {
		return 0, false
	}
	return v.v, true
}

// String renders the value for logs and CSV cells. Missing states render as
// an empty cell so spreadsheet consumers do not mistake them for zeros.
func (v Value) String() string {
	if v.state != Observed {
		return ""
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes observed values as numbers and both missing states as
// null; the state travels separately in provenance flags.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.state != Observed {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes null as not-observed and numbers as observed.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = MissingValue()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = ObservedValue(f)
	return nil
}
