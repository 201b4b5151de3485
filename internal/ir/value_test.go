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
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
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

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 is a surrogate pair (0xD83D 0xDE00) which sorts before U+FF5E
	// in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\U0001F600": IRInt(1),
		"～":     IRInt(2),
	}
	assert.Equal(t, []string{"\U0001F600", "～"}, obj.SortedKeys())
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(IRNull{}))
	assert.False(t, IsNull(IRString("")))
	assert.False(t, IsNull(IRInt(0)))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, TypeString, TypeName(IRString("x")))
	assert.Equal(t, TypeInt, TypeName(IRInt(1)))
	assert.Equal(t, TypeBool, TypeName(IRBool(true)))
	assert.Equal(t, "", TypeName(IRNull{}))
	assert.Equal(t, "", TypeName(IRArray{}))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"same string", IRString("a"), IRString("a"), true},
		{"different string", IRString("a"), IRString("b"), false},
		{"int vs string", IRInt(1), IRString("1"), false},
		{"null vs nil", IRNull{}, nil, true},
		{"null vs zero", IRNull{}, IRInt(0), false},
		{"bools", IRBool(true), IRBool(true), true},
		{"arrays", IRArray{IRInt(1)}, IRArray{IRInt(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(IRNull{}, IRInt(0)))
	assert.Equal(t, -1, Compare(IRInt(2), IRInt(10)))
	assert.Equal(t, 1, Compare(IRInt(10), IRInt(2)))
	assert.Equal(t, 0, Compare(IRInt(3), IRInt(3)))
	assert.Equal(t, -1, Compare(IRBool(false), IRBool(true)))
	assert.Equal(t, -1, Compare(IRString("a"), IRString("b")))
	assert.Equal(t, -1, Compare(IRInt(99), IRString("0")), "ints order before strings")
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, `"C1"`, KeyString(IRString("C1")))
	assert.Equal(t, `7`, KeyString(IRInt(7)))
	assert.Equal(t, "null", KeyString(IRNull{}))
	assert.NotEqual(t, KeyString(IRString("7")), KeyString(IRInt(7)))
}

func TestFormatParseScalar(t *testing.T) {
	tests := []struct {
		typ  string
		val  IRValue
		text string
	}{
		{TypeString, IRString("hello <world>"), "hello <world>"},
		{TypeInt, IRInt(-42), "-42"},
		{TypeBool, IRBool(true), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			text, err := FormatScalar(tt.val)
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)

			back, err := ParseScalar(tt.typ, text)
			require.NoError(t, err)
			assert.Equal(t, tt.val, back)
		})
	}
}

func TestParseScalarErrors(t *testing.T) {
	_, err := ParseScalar(TypeInt, "1.5")
	assert.Error(t, err)
	_, err = ParseScalar(TypeBool, "maybe")
	assert.Error(t, err)
	_, err = ParseScalar("float", "1")
	assert.Error(t, err)
	_, err = FormatScalar(IRNull{})
	assert.Error(t, err)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"name":  IRString("Alice"),
		"age":   IRInt(30),
		"admin": IRBool(false),
		"group": IRNull{},
	}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"admin":false,"age":30,"group":null,"name":"Alice"}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestUnmarshalRejectsFloats(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"price":1.5}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats not allowed")
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{"a": 1, "b": "x", "c": nil, "d": []any{true}})
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"a": IRInt(1),
		"b": IRString("x"),
		"c": IRNull{},
		"d": IRArray{IRBool(true)},
	}, v)

	_, err = FromGo(1.25)
	assert.Error(t, err)

	v, err = FromGo(float64(3))
	require.NoError(t, err)
	assert.Equal(t, IRInt(3), v)
}

func TestToGo(t *testing.T) {
	assert.Equal(t, "x", ToGo(IRString("x")))
	assert.Equal(t, int64(3), ToGo(IRInt(3)))
	assert.Nil(t, ToGo(IRNull{}))
	assert.Equal(t, []any{true}, ToGo(IRArray{IRBool(true)}))
}

func TestCloneDecouples(t *testing.T) {
	obj := IRObject{"a": IRInt(1)}
	c := obj.Clone()
	c["a"] = IRInt(2)
	assert.Equal(t, IRInt(1), obj["a"])
}
