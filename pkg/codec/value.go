package codec

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindString      Kind = "string"
	KindNumber      Kind = "number"
	KindBoolean     Kind = "boolean"
	KindStringArray Kind = "string[]"
	KindNumberArray Kind = "number[]"
)

var (
	ErrUnknownKind      = errors.New("unknown metadata type")
	ErrMixedArray       = errors.New("mixed-type arrays are not supported")
	ErrUnsupportedValue = errors.New("unsupported metadata value")
	ErrNumberRange      = errors.New("number outside signed 32-bit range")
	ErrNotIntegral      = errors.New("number is not an integer")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindString, KindNumber, KindBoolean, KindStringArray, KindNumberArray:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnknownKind, "%q", s)
}

// Value is one custom metadata value. Exactly one of the payload fields
// is meaningful, selected by kind.
type Value struct {
	kind Kind
	str  string
	num  int32
	b    bool
	strs []string
	nums []int32
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n int32) Value  { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value     { return Value{kind: KindBoolean, b: b} }

func Strings(s []string) Value {
	c := make([]string, len(s))
	copy(c, s)
	return Value{kind: KindStringArray, strs: c}
}

func Numbers(n []int32) Value {
	c := make([]int32, len(n))
	copy(c, n)
	return Value{kind: KindNumberArray, nums: c}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsZero() bool { return v.kind == "" }
func (v Value) Str() string  { return v.str }
func (v Value) Num() int32   { return v.num }
func (v Value) Bool() bool   { return v.b }

func (v Value) StrSlice() []string {
	c := make([]string, len(v.strs))
	copy(c, v.strs)
	return c
}

func (v Value) NumSlice() []int32 {
	c := make([]int32, len(v.nums))
	copy(c, v.nums)
	return c
}

func (v Value) Len() int {
	switch v.kind {
	case KindStringArray:
		return len(v.strs)
	case KindNumberArray:
		return len(v.nums)
	}
	return 0
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindStringArray:
		if len(v.strs) != len(o.strs) {
			return false
		}
		for i := range v.strs {
			if v.strs[i] != o.strs[i] {
				return false
			}
		}
		return true
	case KindNumberArray:
		if len(v.nums) != len(o.nums) {
			return false
		}
		for i := range v.nums {
			if v.nums[i] != o.nums[i] {
				return false
			}
		}
		return true
	}
	return true
}

// Interface returns the value as plain Go data, arrays never nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBoolean:
		return v.b
	case KindStringArray:
		return v.StrSlice()
	case KindNumberArray:
		return v.NumSlice()
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return nil, ErrUnsupportedValue
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	inferred, err := Infer(raw)
	if err != nil {
		return err
	}
	*v = inferred
	return nil
}

// Infer picks the tag for a dynamically typed value: bool, integral
// number, all-string array, all-number array, string. Everything else is
// rejected rather than coerced.
func Infer(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case []string:
		return Strings(x), nil
	case []int32:
		return Numbers(x), nil
	case []any:
		return inferArray(x)
	}
	n, ok, err := toInt32(raw)
	if err != nil {
		return Value{}, err
	}
	if ok {
		return Number(n), nil
	}
	return Value{}, errors.Wrapf(ErrUnsupportedValue, "%s", jsonKind(raw))
}

// jsonKind names a decoded value the way a JSON client would.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any, []string, []int32:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok, err := toInt32(v); ok || err != nil {
		return "number"
	}
	return "unknown"
}

func inferArray(items []any) (Value, error) {
	allStrings := true
	for _, it := range items {
		if _, ok := it.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		s := make([]string, len(items))
		for i, it := range items {
			s[i] = it.(string)
		}
		return Strings(s), nil
	}
	first := jsonKind(items[0])
	if first != "string" && first != "number" {
		uniform := true
		for _, it := range items[1:] {
			if jsonKind(it) != first {
				uniform = false
				break
			}
		}
		if uniform {
			return Value{}, errors.Wrapf(ErrUnsupportedValue, "array of %s", first)
		}
	}
	nums := make([]int32, len(items))
	for i, it := range items {
		n, ok, err := toInt32(it)
		if err != nil {
			return Value{}, errors.Wrapf(err, "element %d", i)
		}
		if !ok {
			return Value{}, errors.Wrapf(ErrMixedArray, "element %d is %s", i, jsonKind(it))
		}
		nums[i] = n
	}
	return Numbers(nums), nil
}

func toInt32(raw any) (int32, bool, error) {
	var f float64
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return checkRange(i)
		}
		v, err := x.Float64()
		if err != nil {
			return 0, false, errors.Wrapf(ErrUnsupportedValue, "number %q", x.String())
		}
		f = v
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		return checkRange(int64(x))
	case int32:
		return x, true, nil
	case int64:
		return checkRange(x)
	default:
		return 0, false, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false, ErrNotIntegral
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false, ErrNumberRange
	}
	return int32(f), true, nil
}

func checkRange(i int64) (int32, bool, error) {
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, false, ErrNumberRange
	}
	return int32(i), true, nil
}
