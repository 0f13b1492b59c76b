package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"int", 1, `1`},
		{"string with html", "a<b>&c", `"a<b>&c"`},
		{"map sorted", map[string]any{"b": 2, "a": 1}, `{"a":1,"b":2}`},
		{"raw message reordered", json.RawMessage(`{ "z": [1, 2], "a": null }`), `{"a":null,"z":[1,2]}`},
		{"bytes parsed as json", []byte(`[3, "x"]`), `[3,"x"]`},
		{"large number kept", json.RawMessage(`12345678901234567890`), `12345678901234567890`},
		{"nil", nil, `null`},
		{"empty raw", json.RawMessage(nil), `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	_, err := Canonicalize(make(chan int))
	assert.Error(t, err)

	_, err = Canonicalize(json.RawMessage(`{"a":`))
	assert.Error(t, err)

	_, err = Canonicalize(json.RawMessage(`1 2`))
	assert.Error(t, err)
}

func TestChecksum_Stable(t *testing.T) {
	a := MustCanonicalize(map[string]any{"x": 1, "y": []int{1, 2}})
	b := MustCanonicalize(json.RawMessage(`{"y":[1,2],"x":1}`))

	assert.Equal(t, Checksum(a), Checksum(b), "same value must checksum identically")
	assert.Equal(t, Checksum(a), Checksum(Clone(a)))
	assert.NotEqual(t, Checksum(a), Checksum(MustCanonicalize(map[string]any{"x": 2})))
	assert.Len(t, Checksum(a), 64)
}

func TestClone_Independent(t *testing.T) {
	orig := MustCanonicalize([]int{1, 2})
	c := Clone(orig)
	c[1] = '9'
	assert.Equal(t, `[1,2]`, string(orig))
	assert.Nil(t, Clone(nil))
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		stored   string
		incoming string
		want     string
	}{
		{"replace", Replace, `{"a":1}`, `{"b":2}`, `{"b":2}`},
		{"default passthrough", "", `[1]`, `2`, `2`},
		{"unknown passthrough", Strategy("weird"), `1`, `2`, `2`},
		{"merge objects", Merge, `{"a":1,"b":1}`, `{"b":2,"c":3}`, `{"a":1,"b":2,"c":3}`},
		{"merge non-object stored", Merge, `[1]`, `{"a":1}`, `{"a":1}`},
		{"merge non-object incoming", Merge, `{"a":1}`, `5`, `5`},
		{"append array", Append, `[1,2]`, `[3,4]`, `[1,2,3,4]`},
		{"append scalar", Append, `["a"]`, `"b"`, `["a","b"]`},
		{"append object", Append, `[]`, `{"k":1}`, `[{"k":1}]`},
		{"append onto non-array", Append, `{"a":1}`, `[1]`, `[1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.strategy, json.RawMessage(tt.stored), json.RawMessage(tt.incoming))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestStrategy_Valid(t *testing.T) {
	for _, s := range []Strategy{"", Replace, Merge, Append} {
		assert.True(t, s.Valid(), "strategy %q", s)
	}
	assert.False(t, Strategy("union").Valid())
}

func TestDecode(t *testing.T) {
	v, err := Decode(MustCanonicalize(map[string]any{"n": 1.5}))
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, json.Number("1.5"), m["n"])

	v, err = Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}
