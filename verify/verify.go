// Package verify implements the fixed verifier capability set from
// spec.md §4.2: rsassa-pss-sha256, ed25519, ecdsa-sha2-nistp256. It
// generalizes kolide-updater/tuf/verify.go's single-scheme
// signingMethodECDSA.verify to all three schemes, and switches key/
// signature encoding from base64 to hex per SPEC_FULL.md's REDESIGN FLAGS
// entry.
package verify

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"math/big"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// Verify checks sig over msg using key under the scheme named by key.Scheme.
// It returns a *tuferr.Error of kind KindSignature on any failure, bad
// signature bytes, or unsupported scheme.
func Verify(key data.Key, msg, sig []byte) error {
	switch key.Scheme {
	case data.SchemeRSASSAPSSSHA256:
		return rsaPSSVerify(key, msg, sig)
	case data.SchemeED25519:
		return ed25519Verify(key, msg, sig)
	case data.SchemeECDSASHA2NistP256:
		return ecdsaVerify(key, msg, sig)
	default:
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.Errorf("unsupported scheme %q", key.Scheme)))
	}
}

// Digest hashes b with the named algorithm (sha256 or sha512), the two
// digest functions required by C2.
func Digest(algo string, b []byte) ([]byte, error) {
	return data.Digest(algo, b)
}

func parseRSAPublicKey(pub []byte) (*rsa.PublicKey, error) {
	key, err := parseSPKI(pub)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not an RSA public key")
	}
	return rsaKey, nil
}

func parseECDSAPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	key, err := parseSPKI(pub)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not an ECDSA public key")
	}
	return ecKey, nil
}

// parseSPKI accepts either a raw DER SubjectPublicKeyInfo or a PEM block
// wrapping one, matching the two encodings notary-family keys arrive in.
func parseSPKI(pub []byte) (crypto.PublicKey, error) {
	der := pub
	if block, _ := pem.Decode(pub); block != nil {
		der = block.Bytes
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing SPKI public key")
	}
	return key, nil
}

func rsaPSSVerify(key data.Key, msg, sig []byte) error {
	pub, err := parseRSAPublicKey(key.KeyVal.Public)
	if err != nil {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(err))
	}
	// Legacy KMS backends sometimes emit a signature shorter than the
	// modulus; left-zero-pad to the expected length before verifying
	// (spec.md §4.2).
	modLen := (pub.N.BitLen() + 7) / 8
	sig = leftPad(sig, modLen)
	digest := sha256.Sum256(msg)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, opts); err != nil {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.Wrap(err, "rsa-pss verification failed")))
	}
	return nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded
}

func ed25519Verify(key data.Key, msg, sig []byte) error {
	pub := []byte(key.KeyVal.Public)
	if len(pub) != ed25519.PublicKeySize {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.New("ed25519 verification failed")))
	}
	return nil
}

func ecdsaVerify(key data.Key, msg, sig []byte) error {
	pub, err := parseECDSAPublicKey(key.KeyVal.Public)
	if err != nil {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(err))
	}
	expectedOctetLen := 2 * ((pub.Params().BitSize + 7) / 8)
	if len(sig) != expectedOctetLen {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.Errorf("ecdsa signature length is %d, want %d", len(sig), expectedOctetLen)))
	}
	r := new(big.Int).SetBytes(sig[:len(sig)/2])
	s := new(big.Int).SetBytes(sig[len(sig)/2:])
	digest := sha256.Sum256(msg)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return tuferr.New(tuferr.KindSignature, tuferr.WithCause(errors.New("ecdsa verification failed")))
	}
	return nil
}
