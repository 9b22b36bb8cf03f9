package data_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kolide/tuf/data"
)

// P3 / scenario 6: duplicate keyids in a signature list collapse to one
// (CVE-2020-15093).
func TestUniqueByKeyIDCollapsesDuplicates(t *testing.T) {
	sigs := []data.Signature{
		{KeyID: "k1", Sig: data.HexBytes{0x01}},
		{KeyID: "k1", Sig: data.HexBytes{0x02}},
		{KeyID: "k2", Sig: data.HexBytes{0x03}},
	}
	unique := data.UniqueByKeyID(sigs)
	assert.Len(t, unique, 2)
	assert.Equal(t, "k1", unique[0].KeyID)
	assert.Equal(t, data.HexBytes{0x01}, unique[0].Sig) // first occurrence kept
	assert.Equal(t, "k2", unique[1].KeyID)
}

func TestUniqueByKeyIDNoDuplicates(t *testing.T) {
	sigs := []data.Signature{{KeyID: "k1"}, {KeyID: "k2"}}
	assert.Len(t, data.UniqueByKeyID(sigs), 2)
}
