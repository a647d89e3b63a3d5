// Package model contains the records, schemas and values passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind tells which field of a Value is populated.
type ValueKind uint8

const (
	KindMissing ValueKind = iota
	KindText
	KindNumber
)

// Value is one raw feature value: a categorical level or a number.
type Value struct {
	kind ValueKind
	text string
	num  float64
}

// Text builds a categorical value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number builds a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Missing returns the missing value.
func Missing() Value { return Value{} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsMissing() bool { return v.kind == KindMissing }
func (v Value) Text() string    { return v.text }
func (v Value) Number() float64 { return v.num }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) IsText() bool    { return v.kind == KindText }

// Equal reports whether two values hold the same level or number.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.num == o.num
	default:
		return true
	}
}

// String renders the value for tables and logs.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	default:
		return "NA"
	}
}

// Interface returns the value as a plain Go value (string, float64 or nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

// MarshalJSON encodes text as a string, numbers as numbers and missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string, a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Missing()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidValue, string(data))
	}
	*v = Number(f)
	return nil
}

// ValueOf converts a decoded YAML/JSON scalar into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Missing(), nil
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s", ErrInvalidValue, t.String())
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, x)
	}
}
