package cjson_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolide/tuf/cjson"
)

type sample struct {
	Zebra   string            `json:"zebra"`
	Alpha   int               `json:"alpha"`
	Nested  map[string]string `json:"nested"`
	Boolean bool              `json:"boolean"`
}

// P1: parse(canonicalize(v)) == v, and canonicalizing the round-tripped
// value again is byte-identical to the first canonicalization (idempotent).
func TestRoundTrip(t *testing.T) {
	v := sample{
		Zebra:   "hello/world",
		Alpha:   -42,
		Nested:  map[string]string{"b": "2", "a": "1"},
		Boolean: true,
	}

	encoded, err := cjson.Marshal(v)
	require.NoError(t, err)

	var decoded sample
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, v, decoded)

	reencoded, err := cjson.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

// Object keys must be sorted lexicographically in the output, regardless
// of map iteration order.
func TestKeysAreSorted(t *testing.T) {
	v := map[string]int{"zebra": 1, "alpha": 2, "mid": 3}
	encoded, err := cjson.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(encoded))
}

// Slashes are not escaped by canonical JSON -- only control characters
// below 0x20 and the quote/backslash characters are.
func TestSlashNotEscaped(t *testing.T) {
	v := map[string]string{"path": "a/b/c"}
	encoded, err := cjson.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"a/b/c"`)
}

// Floating point values must be rejected.
func TestFloatRejected(t *testing.T) {
	v := map[string]float64{"x": 1.5}
	_, err := cjson.Marshal(v)
	assert.Error(t, err)
}

// P2: changing any byte of the key object changes the keyid.
func TestKeyIDChangesWithKeyBytes(t *testing.T) {
	k1 := map[string]string{"keytype": "ed25519", "keyval": "abc"}
	k2 := map[string]string{"keytype": "ed25519", "keyval": "abd"}

	id1, err := cjson.KeyID(k1)
	require.NoError(t, err)
	id2, err := cjson.KeyID(k2)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1, 64) // hex-encoded sha256
}

func TestEqual(t *testing.T) {
	a := sample{Zebra: "x", Alpha: 1, Nested: map[string]string{"k": "v"}}
	b := sample{Zebra: "x", Alpha: 1, Nested: map[string]string{"k": "v"}}
	c := sample{Zebra: "y", Alpha: 1, Nested: map[string]string{"k": "v"}}

	eq, err := cjson.Equal(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = cjson.Equal(a, c)
	require.NoError(t, err)
	assert.False(t, eq)
}
