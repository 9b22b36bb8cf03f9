package filekey_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/sign/filekey"
	"github.com/kolide/tuf/verify"
)

func TestLoadPEMEd25519SignsVerifiably(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	src, err := filekey.LoadPEM(block)
	require.NoError(t, err)

	key, err := src.PublicKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, data.KeyTypeED25519, key.KeyType)
	require.Equal(t, []byte(pub), []byte(key.KeyVal.Public))

	msg := []byte("sign me")
	sig, scheme, err := src.Sign(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, data.SchemeED25519, scheme)

	require.NoError(t, verify.Verify(key, msg, sig))
}

func TestLoadPEMRejectsGarbage(t *testing.T) {
	_, err := filekey.LoadPEM([]byte("not pem"))
	require.Error(t, err)
}
