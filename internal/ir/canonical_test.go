package ir

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nfcE = "\u00e9"  // é, precomposed
	nfdE = "e\u0301" // e + combining acute
)

// ============================================================================
// Encoding
// ============================================================================

func TestMarshalCanonical_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		input IRValue
		want  string
	}{
		{"key string", IRString("C1"), `"C1"`},
		{"empty key", IRString(""), `""`},
		{"int key", IRInt(-42), "-42"},
		{"bool", IRBool(false), "false"},
		{"composite key", IRArray{IRString("g"), IRInt(3)}, `["g",3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_QueryShape(t *testing.T) {
	// The shape queryir.Canonical produces for a filtered select.
	q := IRObject{
		"where": IRObject{"op": IRString("eq"), "field": IRString("group"), "value": IRString("g")},
		"from":  IRString("Contact"),
		"order": IRArray{IRObject{"field": IRString("name"), "desc": IRBool(true)}},
		"limit": IRInt(10),
	}

	got, err := MarshalCanonical(q)
	require.NoError(t, err)
	assert.Equal(t,
		`{"from":"Contact","limit":10,"order":[{"desc":true,"field":"name"}],"where":{"field":"group","op":"eq","value":"g"}}`,
		string(got))
}

func TestMarshalCanonical_KeysInUTF16Order(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	got, err := MarshalCanonical(IRObject{"\uE000": IRInt(1), "\U00010000": IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(got))
}

func TestMarshalCanonical_Escaping(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"short escapes", "\b\f\n\r\t", `"\b\f\n\r\t"`},
		{"other controls", "a\x01b\x1f", `"a\u0001b\u001f"`},
		{"html left alone", "<a&b>", `"<a&b>"`},
		{"line separators literal", "\u2028\u2029", "\"\u2028\u2029\""},
		{"invalid utf-8", "a\xffb", `"a\xffb"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_NormalizesToNFC(t *testing.T) {
	a, err := MarshalCanonical(IRObject{nfdE: IRString("caf" + nfdE)})
	require.NoError(t, err)
	b, err := MarshalCanonical(IRObject{nfcE: IRString("caf" + nfcE)})
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr string
	}{
		{"null", IRNull{}, "null is forbidden"},
		{"nil", nil, "null is forbidden"},
		{"float", 1.5, "floats are forbidden"},
		{"null in array", IRArray{IRString("a"), IRNull{}}, "array[1]"},
		{"null member", IRObject{"name": IRNull{}}, `value for key "name"`},
		{"unsupported", struct{}{}, "unsupported type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshalCanonical_GoValues(t *testing.T) {
	// YAML-decoded scenario values arrive as plain Go types.
	got, err := MarshalCanonical(map[string]any{"id": "C1", "tags": []any{"a", 2, true}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"C1","tags":["a",2,true]}`, string(got))
}

// ============================================================================
// Buffer reuse
// ============================================================================

func TestWriteCanonical_Appends(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("obj:Group:")
	require.NoError(t, writeCanonical(&buf, IRString(nfdE), false))
	assert.Equal(t, `obj:Group:"`+nfdE+`"`, buf.String())

	buf.Reset()
	require.NoError(t, writeCanonical(&buf, IRString(nfdE), true))
	assert.Equal(t, `"`+nfcE+`"`, buf.String())
}

func TestWriteCanonical_ErrorLeavesPrefix(t *testing.T) {
	var buf bytes.Buffer
	err := writeCanonical(&buf, IRArray{IRInt(1), IRNull{}}, false)
	require.Error(t, err)
	assert.Equal(t, "[1,", buf.String())
}

// ============================================================================
// Identity keys
// ============================================================================

func TestKeyString_DistinguishesNormalizationForms(t *testing.T) {
	require.False(t, Equal(IRString(nfcE), IRString(nfdE)))
	assert.NotEqual(t, KeyString(IRString(nfcE)), KeyString(IRString(nfdE)))
	assert.Equal(t, `"`+nfdE+`"`, KeyString(IRString(nfdE)))
}

func TestKeyString_DistinguishesInvalidBytes(t *testing.T) {
	a, b := IRString("\xff"), IRString("\xfe")
	require.False(t, Equal(a, b))
	assert.NotEqual(t, KeyString(a), KeyString(b))
	assert.NotEqual(t, KeyString(a), KeyString(IRString("\uFFFD")))
}

func TestKeyString_MatchesEqual(t *testing.T) {
	values := []IRValue{
		IRString("7"), IRInt(7), IRBool(true), IRString("true"),
		IRString(nfcE), IRString(nfdE), IRString(`\x41`), IRString("A"),
		IRArray{IRString("g"), IRInt(1)}, IRArray{IRString("g1")},
	}
	for _, a := range values {
		for _, b := range values {
			assert.Equal(t, Equal(a, b), KeyString(a) == KeyString(b), "%#v vs %#v", a, b)
		}
	}
}

func TestPredicateHash_StableAcrossForms(t *testing.T) {
	a, err := PredicateHash(IRObject{"from": IRString("Contact"), "limit": IRInt(5)})
	require.NoError(t, err)
	b, err := PredicateHash(IRObject{"limit": IRInt(5), "from": IRString("Contact")})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	_, err = PredicateHash(IRObject{"where": IRNull{}})
	assert.Error(t, err)
}

// FuzzKeyString checks the identity key contract on arbitrary strings.
func FuzzKeyString(f *testing.F) {
	f.Add("C1", "C1")
	f.Add(nfcE, nfdE)
	f.Add("\xff", "\xfe")
	f.Add(`\x41`, "A")

	f.Fuzz(func(t *testing.T, a, b string) {
		same := KeyString(IRString(a)) == KeyString(IRString(b))
		assert.Equal(t, a == b, same)
	})
}
