package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"decimal", IRDecimal("72.50"), "72.50"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{
			"b": IRInt(1),
			"a": IRInt(2),
		},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<div>a & b</div>"))
	require.NoError(t, err)
	assert.Equal(t, `"<div>a & b</div>"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to precomposed U+00E9
	decomposed, err := MarshalCanonical(IRString("Jose\u0301"))
	require.NoError(t, err)
	precomposed, err := MarshalCanonical(IRString("Jos\u00e9"))
	require.NoError(t, err)

	assert.Equal(t, precomposed, decomposed)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalControlCharacters(t *testing.T) {
	result, err := MarshalCanonical(IRString("line\nbreak\t\"q\""))
	require.NoError(t, err)
	assert.Equal(t, `"line\nbreak\t\"q\""`, string(result))
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	build := func() IRObject {
		return IRObject{
			"resourceType": IRString("Patient"),
			"name":         IRArray{IRObject{"family": IRString("Smith"), "given": IRArray{IRString("Ann")}}},
			"birthDate":    IRString("1980-01-01"),
		}
	}

	first, err := MarshalCanonical(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
