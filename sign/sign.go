// Package sign defines the pluggable signer/key-source abstraction from
// spec.md §4.5. Concrete backends live in sibling packages (filekey,
// awskms, awsssm) so that this package has no dependency on any specific
// key storage technology.
package sign

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/sign/awskms"
	"github.com/kolide/tuf/sign/awsssm"
	"github.com/kolide/tuf/sign/filekey"
	"github.com/kolide/tuf/tuferr"
)

// KeySource produces a public key and signs arbitrary bytes with the
// corresponding private key. Every method may suspend (perform network
// I/O) and accepts a context so that suspension is cancellable, per
// spec.md §5.
type KeySource interface {
	// PublicKey returns the public key object this source signs for.
	PublicKey(ctx context.Context) (data.Key, error)
	// Sign returns a signature over msg (the canonical JSON encoding of a
	// role's "signed" body) and the scheme it was produced under.
	Sign(ctx context.Context, msg []byte) (sig []byte, scheme string, err error)
}

// ParseKeySourceURI builds a KeySource from a --key flag value (cmd/tuf,
// spec.md §6): "file:PATH" loads a local PEM key via sign/filekey,
// "aws-kms://KEY_ID" signs through AWS KMS via sign/awskms, and
// "aws-ssm://PARAMETER_NAME" reads a PEM key out of SSM Parameter Store via
// sign/awsssm. This is the one place the CLI maps a flag string onto a
// concrete signer backend; the library packages above never parse URIs
// themselves.
func ParseKeySourceURI(ctx context.Context, uri string) (KeySource, error) {
	switch {
	case strings.HasPrefix(uri, "file:"):
		return filekey.Load(strings.TrimPrefix(uri, "file:"))
	case strings.HasPrefix(uri, "aws-kms://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "parsing aws-kms key uri")))
		}
		return awskms.New(ctx, u.Host+u.Path)
	case strings.HasPrefix(uri, "aws-ssm://"):
		u, err := url.Parse(uri)
		if err != nil {
			return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "parsing aws-ssm key uri")))
		}
		return awsssm.New(ctx, u.Host+u.Path)
	default:
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Errorf("unrecognized key source uri %q", uri)))
	}
}

// SignEnvelope signs the canonical encoding of signed with every key
// source given and returns the resulting signature list, used by the
// editor (C9) when finalizing a role.
func SignEnvelope(ctx context.Context, canonicalSigned []byte, sources []KeySource) ([]data.Signature, error) {
	sigs := make([]data.Signature, 0, len(sources))
	for _, src := range sources {
		key, err := src.PublicKey(ctx)
		if err != nil {
			return nil, err
		}
		keyID, err := key.ID()
		if err != nil {
			return nil, err
		}
		sigBytes, _, err := src.Sign(ctx, canonicalSigned)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, data.Signature{KeyID: keyID, Sig: data.HexBytes(sigBytes)})
	}
	return sigs, nil
}
