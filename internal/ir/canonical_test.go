package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"integral float", 3.0, "3"},
		{"fraction", 0.25, "0.25"},
		{"json number", json.Number("12345678901234567890"), "12345678901234567890"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"no html escaping", "<a & b>", `"<a & b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D, which sorts before 0xE000 in
	// UTF-16 even though its UTF-8 encoding sorts after.
	obj := map[string]any{
		"\uE000":     1,
		"\U0001F600": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"name": "café"})
	require.NoError(t, err)
	assert.Equal(t, "{\"name\":\"caf\u00e9\"}", string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": math.NaN()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value for key "x"`)

	_, err = MarshalCanonical(math.Inf(1))
	require.Error(t, err)
}

func TestMarshalCanonicalStruct(t *testing.T) {
	type point struct {
		Y int `json:"y"`
		X int `json:"x"`
	}
	result, err := MarshalCanonical(point{Y: 2, X: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, string(result))
}

func TestUnmarshalDataKeepsIntegers(t *testing.T) {
	data, err := UnmarshalData([]byte(`{"big":9007199254740993,"title":"T"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), data["big"])
	assert.Equal(t, "T", data["title"])

	empty, err := UnmarshalData(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := map[string]any{"c": []any{1, "two", false}, "a": "x", "b": map[string]any{"z": nil}}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
