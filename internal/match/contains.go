package match

import (
	"reflect"
	"strconv"
)

// Contains reports whether actual structurally contains pattern.
func Contains(actual, pattern any) bool {
	if pattern == nil {
		return true
	}

	pv := indirect(reflect.ValueOf(pattern))
	if !pv.IsValid() {
		return true
	}

	switch pv.Kind() {
	case reflect.Map:
		iter := pv.MapRange()
		for iter.Next() {
			got, ok := lookup(actual, iter.Key())
			if !ok || !Contains(got, iter.Value().Interface()) {
				return false
			}
		}
		return true

	case reflect.Slice, reflect.Array:
		for i := 0; i < pv.Len(); i++ {
			got, ok := lookup(actual, reflect.ValueOf(i))
			if !ok || !Contains(got, pv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	return scalarEqual(actual, pv)
}

// lookup fetches the member of container designated by key.
// Map keys and slice indices are interchangeable when one is the decimal
// rendering of the other.
func lookup(container any, key reflect.Value) (any, bool) {
	if container == nil {
		return nil, false
	}
	cv := indirect(reflect.ValueOf(container))
	if !cv.IsValid() {
		return nil, false
	}
	key = indirect(key)

	switch cv.Kind() {
	case reflect.Map:
		k, ok := convertKey(key, cv.Type().Key())
		if !ok {
			return nil, false
		}
		v := cv.MapIndex(k)
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true

	case reflect.Slice, reflect.Array:
		idx, ok := indexOf(key)
		if !ok || idx < 0 || idx >= cv.Len() {
			return nil, false
		}
		return cv.Index(idx).Interface(), true
	}

	return nil, false
}

// convertKey adapts a pattern key to the key type of the actual map.
func convertKey(key reflect.Value, to reflect.Type) (reflect.Value, bool) {
	if key.Type().AssignableTo(to) {
		return key, true
	}
	if to.Kind() == reflect.String {
		if idx, ok := indexOf(key); ok {
			return reflect.ValueOf(strconv.Itoa(idx)).Convert(to), true
		}
		if key.Kind() == reflect.String {
			return key.Convert(to), true
		}
		return reflect.Value{}, false
	}
	if to.Kind() == reflect.Interface && key.Type().Implements(to) {
		return key.Convert(to), true
	}
	if isInteger(to.Kind()) {
		if idx, ok := indexOf(key); ok {
			return reflect.ValueOf(idx).Convert(to), true
		}
	}
	return reflect.Value{}, false
}

// indexOf interprets key as a non-negative array index.
func indexOf(key reflect.Value) (int, bool) {
	switch {
	case isInteger(key.Kind()):
		if isUnsigned(key.Kind()) {
			return int(key.Uint()), true
		}
		return int(key.Int()), true
	case key.Kind() == reflect.String:
		n, err := strconv.Atoi(key.String())
		if err != nil || n < 0 || strconv.Itoa(n) != key.String() {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// scalarEqual compares a scalar pattern with actual without type coercion,
// except that all numeric kinds share a single value space.
func scalarEqual(actual any, pv reflect.Value) bool {
	if actual == nil {
		return false
	}
	av := indirect(reflect.ValueOf(actual))
	if !av.IsValid() {
		return false
	}

	if isNumber(av.Kind()) && isNumber(pv.Kind()) {
		return toFloat(av) == toFloat(pv)
	}

	switch {
	case av.Kind() == reflect.String && pv.Kind() == reflect.String:
		return av.String() == pv.String()
	case av.Kind() == reflect.Bool && pv.Kind() == reflect.Bool:
		return av.Bool() == pv.Bool()
	}

	if av.Type() != pv.Type() || !av.Type().Comparable() {
		return false
	}
	return av.Interface() == pv.Interface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isUnsigned(v.Kind()):
		return float64(v.Uint())
	case isInteger(v.Kind()):
		return float64(v.Int())
	default:
		return v.Float()
	}
}

func isNumber(k reflect.Kind) bool {
	return isInteger(k) || k == reflect.Float32 || k == reflect.Float64
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return isUnsigned(k)
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
