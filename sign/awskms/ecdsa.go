package awskms

import (
	"encoding/asn1"
	"math/big"

	"github.com/pkg/errors"
)

// derECDSAToRaw converts a DER-encoded ECDSA signature (the form KMS
// returns) into the raw, fixed-width r||s encoding used elsewhere in this
// module, matching verify.ecdsaVerify's expectation.
func derECDSAToRaw(der []byte) ([]byte, error) {
	var sig struct {
		R, S *big.Int
	}
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, errors.Wrap(err, "parsing der ecdsa signature")
	}
	const octetLen = 32 // P-256
	out := make([]byte, 2*octetLen)
	sig.R.FillBytes(out[:octetLen])
	sig.S.FillBytes(out[octetLen:])
	return out, nil
}
