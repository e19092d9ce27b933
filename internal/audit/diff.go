// diff.go implements field-level comparison of before/after snapshots, producing the
// list of changed fields that backs change-history displays.
package audit

import (
	"encoding/json"
	"sort"

	"github.com/stocktrail/stocktrail/internal/db/models"
)

// FieldChange describes a single field whose value differs between the old
// and new snapshots of a record.
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// Diff compares two snapshots field by field and returns a change tuple for
// every key of newValues whose value is not deeply equal to the corresponding
// value in oldValues. Changes are emitted in sorted field order so the result
// is deterministic regardless of map iteration order.
//
// Keys present only in oldValues (fields removed between the two snapshots)
// are intentionally not reported: the diff describes value changes on the new
// record's fields, not structural field removal. Display code relies on this
// asymmetry.
func Diff(oldValues, newValues models.Snapshot) []FieldChange {
	if len(newValues) == 0 {
		return nil
	}

	keys := make([]string, 0, len(newValues))
	for k := range newValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []FieldChange
	for _, k := range keys {
		newVal := newValues[k]
		oldVal, ok := oldValues[k]
		if !ok {
			oldVal = nil
		}
		if !valueEqual(oldVal, newVal) {
			changes = append(changes, FieldChange{Field: k, OldValue: oldVal, NewValue: newVal})
		}
	}
	return changes
}

// valueEqual reports deep structural equality between two snapshot values.
// Numbers compare by value across Go numeric kinds and json.Number, so 10,
// int64(10), and 10.0 are all equal. Arrays compare element-wise and objects
// key-wise; anything else falls back to canonical JSON comparison.
func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if af, aok := toFloat64(a); aok {
		bf, bok := toFloat64(b)
		return bok && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, exists := bv[k]
			if !exists || !valueEqual(v, bval) {
				return false
			}
		}
		return true
	}

	// Uncommon types (time.Time, custom structs): compare their canonical
	// JSON serialisations. encoding/json sorts map keys, so this is stable.
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}

// toFloat64 converts any Go numeric kind (or json.Number) to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
