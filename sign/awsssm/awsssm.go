// Package awsssm implements a sign.KeySource that reads a PEM private key
// out of AWS Systems Manager Parameter Store (as a SecureString) and signs
// with it in-process via sign/filekey's signing logic, for deployments that
// keep signing keys in SSM rather than on local disk or in KMS.
package awsssm

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/sign/filekey"
	"github.com/kolide/tuf/tuferr"
)

// Source signs using a key fetched once from an SSM SecureString parameter
// and cached for the lifetime of the process.
type Source struct {
	inner *filekey.Source
}

// New loads the default AWS credential chain, fetches and decrypts the
// named SecureString parameter, and parses it as a PEM private key using
// the same parsing rules sign/filekey.Load applies to local files.
func New(ctx context.Context, parameterName string, optFns ...func(*awsconfig.LoadOptions) error) (*Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "loading aws config")))
	}
	client := ssm.NewFromConfig(cfg)
	return NewFromClient(ctx, client, parameterName)
}

// NewFromClient builds a Source from an already-configured SSM client,
// primarily for tests.
func NewFromClient(ctx context.Context, client *ssm.Client, parameterName string) (*Source, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(parameterName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "ssm GetParameter")))
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Errorf("parameter %s has no value", parameterName)))
	}

	inner, err := filekey.LoadPEM([]byte(*out.Parameter.Value))
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "parsing ssm parameter as pem key")))
	}
	return &Source{inner: inner}, nil
}

// PublicKey implements sign.KeySource.
func (s *Source) PublicKey(ctx context.Context) (data.Key, error) {
	return s.inner.PublicKey(ctx)
}

// Sign implements sign.KeySource.
func (s *Source) Sign(ctx context.Context, msg []byte) ([]byte, string, error) {
	return s.inner.Sign(ctx, msg)
}
