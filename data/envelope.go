package data

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/tuferr"
)

// envelope is the {signed, signatures} wire format common to every role
// document (spec.md §3). signedRaw is decoded into a generic
// map[string]interface{} (never the typed struct) so that any field the
// typed schema does not know about survives a canonicalize round-trip
// unchanged -- required because signatures are computed over
// canonical_json(signed), and discarding an unknown field before
// re-encoding would silently invalidate every signature (spec.md §9).
type envelope struct {
	SignedRaw  json.RawMessage `json:"signed"`
	Signatures []Signature     `json:"signatures"`
}

// decodeEnvelope parses raw bytes into the typed signed body (via target)
// and returns the preserved generic form of "signed" for later
// canonicalization, plus the signature list.
func decodeEnvelope(raw []byte, target interface{}) (signedMap map[string]interface{}, sigs []Signature, err error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Wrap(err, "decoding envelope")))
	}
	if len(env.SignedRaw) == 0 {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.New("missing \"signed\" field")))
	}
	if err := json.Unmarshal(env.SignedRaw, target); err != nil {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Wrap(err, "decoding signed body")))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(env.SignedRaw, &m); err != nil {
		return nil, nil, tuferr.New(tuferr.KindParse, tuferr.WithCause(errors.Wrap(err, "decoding signed body as map")))
	}
	return m, UniqueByKeyID(env.Signatures), nil
}

// canonicalSigned re-derives the signing pre-image from the preserved
// generic form of "signed", so unknown fields present at parse time still
// contribute to the bytes a signature is checked against.
func canonicalSigned(signedMap map[string]interface{}) ([]byte, error) {
	b, err := cjson.Marshal(signedMap)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing signed body")
	}
	return b, nil
}

// encodeEnvelope serializes a freshly-built (not parsed) role body and its
// signatures back into the {signed, signatures} wire format.
func encodeEnvelope(signed interface{}, sigs []Signature) ([]byte, error) {
	raw, err := cjson.Marshal(signed)
	if err != nil {
		return nil, err
	}
	out := struct {
		Signed     json.RawMessage `json:"signed"`
		Signatures []Signature     `json:"signatures"`
	}{
		Signed:     raw,
		Signatures: sigs,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}
	return b, nil
}
