// Package awskms implements a sign.KeySource backed by AWS KMS asymmetric
// signing keys, so that a root or targets key's private material never
// leaves KMS. Grounded on kolide-updater's AWS-flavored deployment target
// (the teacher ships binaries fetched from an S3-backed Notary server) and
// generalized with aws-sdk-go-v2's service/kms client.
package awskms

import (
	"context"
	"crypto/x509"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// Source signs via a single asymmetric KMS key, identified by key ID or
// ARN.
type Source struct {
	client  *kms.Client
	keyID   string
	pub     data.Key
	scheme  string
	kmsAlgo kmstypes.SigningAlgorithmSpec
}

// New loads the default AWS credential chain (environment, shared config,
// EC2/ECS role) via aws-sdk-go-v2/config and returns a Source bound to
// keyID. The key's public material and signing algorithm are fetched from
// KMS immediately so that later Sign calls never need a GetPublicKey round
// trip.
func New(ctx context.Context, keyID string, optFns ...func(*awsconfig.LoadOptions) error) (*Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "loading aws config")))
	}
	client := kms.NewFromConfig(cfg)
	return NewFromClient(ctx, client, keyID)
}

// NewFromClient builds a Source from an already-configured KMS client,
// primarily for tests.
func NewFromClient(ctx context.Context, client *kms.Client, keyID string) (*Source, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "kms GetPublicKey")))
	}

	algo, scheme, err := schemeForSigningAlgorithms(out.SigningAlgorithms)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
	}

	pubKey, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "parsing kms public key")))
	}
	der, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return nil, tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
	}

	keyType := data.KeyTypeRSA
	if out.KeySpec == kmstypes.KeySpecEccNistP256 {
		keyType = data.KeyTypeECDSA
	}

	return &Source{
		client:  client,
		keyID:   keyID,
		kmsAlgo: algo,
		scheme:  scheme,
		pub: data.Key{
			KeyType: keyType,
			Scheme:  scheme,
			KeyVal:  data.KeyVal{Public: data.HexBytes(der)},
		},
	}, nil
}

func schemeForSigningAlgorithms(algos []kmstypes.SigningAlgorithmSpec) (kmstypes.SigningAlgorithmSpec, string, error) {
	for _, a := range algos {
		switch a {
		case kmstypes.SigningAlgorithmSpecRsassaPssSha256:
			return a, data.SchemeRSASSAPSSSHA256, nil
		case kmstypes.SigningAlgorithmSpecEcdsaSha256:
			return a, data.SchemeECDSASHA2NistP256, nil
		}
	}
	return "", "", errors.New("kms key does not support a supported TUF signing algorithm")
}

// PublicKey implements sign.KeySource.
func (s *Source) PublicKey(ctx context.Context) (data.Key, error) {
	return s.pub, nil
}

// Sign implements sign.KeySource, sending msg to KMS's Sign API. KMS
// computes the message digest itself. RSA-PSS signatures are returned as
// KMS produced them; ECDSA signatures come back DER-encoded and are
// converted to raw r||s by derECDSAToRaw before being returned.
func (s *Source) Sign(ctx context.Context, msg []byte) ([]byte, string, error) {
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          msg,
		MessageType:      kmstypes.MessageTypeRaw,
		SigningAlgorithm: s.kmsAlgo,
	})
	if err != nil {
		return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(errors.Wrap(err, "kms Sign")))
	}

	if s.kmsAlgo == kmstypes.SigningAlgorithmSpecEcdsaSha256 {
		raw, err := derECDSAToRaw(out.Signature)
		if err != nil {
			return nil, "", tuferr.New(tuferr.KindSigner, tuferr.WithCause(err))
		}
		return raw, s.scheme, nil
	}
	return out.Signature, s.scheme, nil
}
