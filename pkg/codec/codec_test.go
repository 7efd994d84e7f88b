package codec

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"bool true", Bool(true)},
		{"bool false", Bool(false)},
		{"number zero", Number(0)},
		{"number max", Number(math.MaxInt32)},
		{"number min", Number(math.MinInt32)},
		{"number negative max", Number(-math.MaxInt32)},
		{"string empty", String("")},
		{"string ascii", String("OpenJDK 64-Bit Server VM")},
		{"string multibyte", String("größe 日本語 🚀")},
		{"string array empty", Strings(nil)},
		{"string array", Strings([]string{"a", "", "ünïcödé", "🚀🚀"})},
		{"number array empty", Numbers(nil)},
		{"number array", Numbers([]int32{1, -1, math.MaxInt32, math.MinInt32, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.value)
			require.NoError(t, err)
			got, err := Decode(blob, tt.value.Kind())
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(got), "got %v want %v", got.Interface(), tt.value.Interface())
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	blob, err := Encode(Number(-2))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xfe}, blob)

	blob, err = Encode(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, blob)

	blob, err = Encode(Numbers([]int32{7, 1}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 2, 0, 0, 0, 7, 0, 0, 0, 1}, blob)

	blob, err = Encode(Strings([]string{"ab", "é"}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 2, 'a', 'b', 0, 0, 0, 2, 0xc3, 0xa9}, blob)

	blob, err = Encode(Strings(nil))
	require.NoError(t, err)
	assert.Len(t, blob, 0)
}

func TestDecodeTruncatedStringArray(t *testing.T) {
	blob := []byte{0, 0, 0, 10, 'a', 'b', 'c'}
	_, err := Decode(blob, KindStringArray)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode([]byte{0, 0, 0, 1, 'a', 0, 0}, KindStringArray)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode([]byte{0xff, 0xff, 0xff, 0xff}, KindStringArray)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecodeShortBlobs(t *testing.T) {
	_, err := Decode([]byte{0, 1}, KindNumber)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode(nil, KindBoolean)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode([]byte{0, 0, 0, 3, 0, 0, 0, 1}, KindNumberArray)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode([]byte{1}, Kind("object"))
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestInfer(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{`true`, KindBoolean},
		{`42`, KindNumber},
		{`-2147483648`, KindNumber},
		{`"hello"`, KindString},
		{`["a","b"]`, KindStringArray},
		{`[]`, KindStringArray},
		{`[1,2,3]`, KindNumberArray},
		{`[1.0, 2]`, KindNumberArray},
	}
	for _, tt := range tests {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &v), tt.raw)
		assert.Equal(t, tt.kind, v.Kind(), tt.raw)
	}
}

func TestInferRejects(t *testing.T) {
	tests := []struct {
		raw string
		err error
	}{
		{`["a", 1]`, ErrMixedArray},
		{`[1, "a"]`, ErrMixedArray},
		{`[true]`, ErrUnsupportedValue},
		{`[null, null]`, ErrUnsupportedValue},
		{`[1, true]`, ErrMixedArray},
		{`2147483648`, ErrNumberRange},
		{`-2147483649`, ErrNumberRange},
		{`[2147483648]`, ErrNumberRange},
		{`1.5`, ErrNotIntegral},
		{`{"a":1}`, ErrUnsupportedValue},
		{`null`, ErrUnsupportedValue},
	}
	for _, tt := range tests {
		var v Value
		err := json.Unmarshal([]byte(tt.raw), &v)
		require.Error(t, err, tt.raw)
		assert.True(t, errors.Is(err, tt.err), "%s: %v", tt.raw, err)
	}
}

func TestInferErrorsNameJSONKinds(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`null`, "null"},
		{`{"a":1}`, "object"},
		{`[true, false]`, "array of boolean"},
		{`[{"a":1}]`, "array of object"},
		{`[1, null]`, "element 1 is null"},
		{`["a", {}]`, "element 0 is string"},
	}
	for _, tt := range tests {
		var v Value
		err := json.Unmarshal([]byte(tt.raw), &v)
		require.Error(t, err, tt.raw)
		assert.Contains(t, err.Error(), tt.want, tt.raw)
		assert.NotContains(t, err.Error(), "interface", tt.raw)
		assert.NotContains(t, err.Error(), "<nil>", tt.raw)
	}
}

func TestMarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Value{
		"n":  Number(3),
		"s":  Strings(nil),
		"na": Numbers(nil),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3,"s":[],"na":[]}`, string(out))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("number[]")
	require.NoError(t, err)
	assert.Equal(t, KindNumberArray, k)
	_, err = ParseKind("float")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
