package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRDecimal("72.50")
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysSurrogates(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00 which sort before U+FF61
	// in UTF-16 even though UTF-8 byte order says otherwise.
	obj := IRObject{"\U0001F600": IRInt(1), "\uff61": IRInt(2)}

	assert.Equal(t, []string{"\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want IRValue
	}{
		{"int", `42`, IRInt(42)},
		{"negative", `-7`, IRInt(-7)},
		{"decimal keeps literal", `72.50`, IRDecimal("72.50")},
		{"exponent", `1e3`, IRDecimal("1e3")},
		{"beyond int64", `92233720368547758070`, IRDecimal("92233720368547758070")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalIRValue([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalIRValueNull(t *testing.T) {
	got, err := UnmarshalIRValue([]byte(`{"a":null,"b":[null]}`))
	require.NoError(t, err)

	assert.Equal(t, IRObject{"a": IRNull{}, "b": IRArray{IRNull{}}}, got)
}

func TestUnmarshalIRValueRejectsTrailingData(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	in := `{"resourceType":"Observation","valueQuantity":{"unit":"kg","value":72.50},"component":[{"code":"x"}],"status":"final","issued":null,"active":true,"count":3}`

	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(in), &obj))

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t,
		`{"active":true,"component":[{"code":"x"}],"count":3,"issued":null,"resourceType":"Observation","status":"final","valueQuantity":{"unit":"kg","value":72.50}}`,
		string(out))
}

func TestUnmarshalObjectRejectsArray(t *testing.T) {
	_, err := UnmarshalObject([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestIRObjectAccessors(t *testing.T) {
	obj := IRObject{
		"id":   IRString("p1"),
		"meta": IRObject{"versionId": IRString("2")},
		"n":    IRInt(1),
	}

	assert.Equal(t, "p1", obj.String("id"))
	assert.Equal(t, "", obj.String("n"))
	assert.Equal(t, "", obj.String("missing"))
	assert.Equal(t, "2", obj.Object("meta").String("versionId"))
	assert.Nil(t, obj.Object("id"))
}

func TestFromAny(t *testing.T) {
	got, err := FromAny(map[string]any{
		"name":   "x",
		"count":  3,
		"weight": 72.5,
		"whole":  float64(4),
		"tags":   []any{"a", true, nil},
	})
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"name":   IRString("x"),
		"count":  IRInt(3),
		"weight": IRDecimal("72.5"),
		"whole":  IRInt(4),
		"tags":   IRArray{IRString("a"), IRBool(true), IRNull{}},
	}, got)
}

func TestIRDecimalFloat(t *testing.T) {
	f, err := IRDecimal("72.50").Float()
	require.NoError(t, err)
	assert.InDelta(t, 72.5, f, 1e-9)
}
