// Package filekey implements a local-file-backed sign.KeySource, grounded
// on johnsandiford-notary/utils/keys.go's PEM key-loading conventions: a
// private key is read from a 0600 PEM file on disk and used to sign
// in-process, without ever leaving the machine.
package filekey

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// Source signs with a private key loaded from a PEM file.
type Source struct {
	priv   crypto.Signer
	pub    data.Key
	scheme string
}

// Load reads a PEM-encoded private key from path and derives the matching
// public key object and scheme. Supported key types: RSA (rsassa-pss-
// sha256), Ed25519 (ed25519), ECDSA P-256 (ecdsa-sha2-nistp256).
func Load(path string) (*Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithFile(path), tuferr.WithCause(errors.Wrap(err, "reading key file")))
	}
	src, err := LoadPEM(raw)
	if err != nil {
		if terr, ok := err.(*tuferr.Error); ok {
			terr.File = path
			return nil, terr
		}
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithFile(path), tuferr.WithCause(err))
	}
	return src, nil
}

// LoadPEM parses a PEM-encoded private key already held in memory (e.g.
// fetched from a secrets store rather than read off local disk).
func LoadPEM(raw []byte) (*Source, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.New("no PEM block found")))
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.New("key does not implement crypto.Signer")))
	}

	pub, scheme, err := publicKeyObject(signer.Public())
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
	}

	return &Source{priv: signer, pub: pub, scheme: scheme}, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("unrecognized private key encoding")
}

func publicKeyObject(pub crypto.PublicKey) (data.Key, string, error) {
	switch p := pub.(type) {
	case ed25519.PublicKey:
		return data.Key{
			KeyType: data.KeyTypeED25519,
			Scheme:  data.SchemeED25519,
			KeyVal:  data.KeyVal{Public: data.HexBytes(p)},
		}, data.SchemeED25519, nil
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(p)
		if err != nil {
			return data.Key{}, "", errors.Wrap(err, "marshaling rsa public key")
		}
		return data.Key{
			KeyType: data.KeyTypeRSA,
			Scheme:  data.SchemeRSASSAPSSSHA256,
			KeyVal:  data.KeyVal{Public: data.HexBytes(der)},
		}, data.SchemeRSASSAPSSSHA256, nil
	case *ecdsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(p)
		if err != nil {
			return data.Key{}, "", errors.Wrap(err, "marshaling ecdsa public key")
		}
		return data.Key{
			KeyType: data.KeyTypeECDSA,
			Scheme:  data.SchemeECDSASHA2NistP256,
			KeyVal:  data.KeyVal{Public: data.HexBytes(der)},
		}, data.SchemeECDSASHA2NistP256, nil
	default:
		return data.Key{}, "", errors.Errorf("unsupported public key type %T", pub)
	}
}

// PublicKey implements sign.KeySource.
func (s *Source) PublicKey(ctx context.Context) (data.Key, error) {
	return s.pub, nil
}

// Sign implements sign.KeySource, dispatching to the right signing
// primitive for the loaded key's scheme.
func (s *Source) Sign(ctx context.Context, msg []byte) ([]byte, string, error) {
	switch s.scheme {
	case data.SchemeED25519:
		ed, ok := s.priv.(ed25519.PrivateKey)
		if !ok {
			return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.New("expected ed25519 private key")))
		}
		return ed25519.Sign(ed, msg), s.scheme, nil
	case data.SchemeRSASSAPSSSHA256:
		digest := sha256.Sum256(msg)
		sig, err := rsa.SignPSS(rand.Reader, s.priv.(*rsa.PrivateKey), crypto.SHA256, digest[:],
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
		if err != nil {
			return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
		}
		return sig, s.scheme, nil
	case data.SchemeECDSASHA2NistP256:
		digest := sha256.Sum256(msg)
		ecKey, ok := s.priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.New("expected ecdsa private key")))
		}
		r, sVal, err := ecdsa.Sign(rand.Reader, ecKey, digest[:])
		if err != nil {
			return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
		}
		octetLen := (ecKey.Params().BitSize + 7) / 8
		sig := make([]byte, 2*octetLen)
		r.FillBytes(sig[:octetLen])
		sVal.FillBytes(sig[octetLen:])
		return sig, s.scheme, nil
	default:
		return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Errorf("unsupported scheme %q", s.scheme)))
	}
}
