package editor_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	realclock "github.com/WatchBeam/clock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/editor"
	"github.com/kolide/tuf/sign"
)

// fakeSigner is a minimal in-memory sign.KeySource for tests, mirroring
// client_test.go's keypair helper.
type fakeSigner struct {
	pub  data.Key
	priv ed25519.PrivateKey
}

func genSigner(t *testing.T) fakeSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return fakeSigner{
		pub:  data.Key{KeyType: data.KeyTypeED25519, Scheme: data.SchemeED25519, KeyVal: data.KeyVal{Public: data.HexBytes(pub)}},
		priv: priv,
	}
}

func (s fakeSigner) PublicKey(ctx context.Context) (data.Key, error) { return s.pub, nil }

func (s fakeSigner) Sign(ctx context.Context, msg []byte) ([]byte, string, error) {
	return ed25519.Sign(s.priv, msg), data.SchemeED25519, nil
}

func (s fakeSigner) id(t *testing.T) string {
	t.Helper()
	id, err := s.pub.ID()
	require.NoError(t, err)
	return id
}

func newTestEditor(t *testing.T) (*editor.Editor, fakeSigner, fakeSigner, fakeSigner, fakeSigner) {
	t.Helper()
	rootKey := genSigner(t)
	targetsKey := genSigner(t)
	snapshotKey := genSigner(t)
	timestampKey := genSigner(t)

	e := editor.New(editor.Settings{Clock: realclock.New()}, nil)

	e.Open(editor.ModeRoot)
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.AddKey(string(data.RoleRoot), rootKey.pub))
	require.NoError(t, e.AddKey(string(data.RoleTargets), targetsKey.pub))
	require.NoError(t, e.AddKey(string(data.RoleSnapshot), snapshotKey.pub))
	require.NoError(t, e.AddKey(string(data.RoleTimestamp), timestampKey.pub))
	require.NoError(t, e.SetThreshold(data.RoleRoot, 1))
	require.NoError(t, e.SetThreshold(data.RoleTargets, 1))
	require.NoError(t, e.SetThreshold(data.RoleSnapshot, 1))
	require.NoError(t, e.SetThreshold(data.RoleTimestamp, 1))
	require.NoError(t, e.SignRoot(context.Background(), rootKey))

	e.Open(editor.ModeTargets)
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	e.Open(editor.ModeSnapshot)
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	e.Open(editor.ModeTimestamp)
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	return e, rootKey, targetsKey, snapshotKey, timestampKey
}

func TestAddAndRemoveTarget(t *testing.T) {
	e, _, _, _, _ := newTestEditor(t)
	e.Open(editor.ModeTargets)

	require.NoError(t, e.AddTarget("a/b.bin", []byte("hello"), nil, nil))
	require.NoError(t, e.AddTarget("a/b.bin", []byte("hello2"), nil, []byte(`{"x":1}`)))
	require.NoError(t, e.AddTarget("a/b.bin", []byte("hello3"), nil, nil))
	require.NoError(t, e.RemoveTarget("a/b.bin"))
}

func TestAddTargetsFromDir(t *testing.T) {
	e, _, _, _, _ := newTestEditor(t)
	e.Open(editor.ModeTargets)

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/repo/a.bin", []byte("one"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/repo/sub/b.bin", []byte("two"), 0644))

	require.NoError(t, e.AddTargetsFromDir(context.Background(), fsys, "/repo", nil))
}

func TestDelegationLifecycle(t *testing.T) {
	e, _, _, _, _ := newTestEditor(t)
	childKey := genSigner(t)

	e.Open(editor.ModeTargets)
	require.NoError(t, e.DelegateRole("team-a", []data.Key{childKey.pub}, 1, []string{"team-a/*"}, nil, false))

	e.Open(editor.Mode("team-a"))
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.AddTarget("team-a/x.bin", []byte("x"), nil, nil))

	e.Open(editor.ModeTargets)
	require.NoError(t, e.AddKey("team-a", childKey.pub))
	require.NoError(t, e.RemoveKey("team-a", childKey.id(t)))
	require.NoError(t, e.RemoveRole("team-a", true))
}

func TestCrossSignRoot(t *testing.T) {
	e, rootKey, _, _, _ := newTestEditor(t)
	newRootKey := genSigner(t)

	e.Open(editor.ModeRoot)
	e.SetVersion(2)
	e.SetExpires(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.AddKey(string(data.RoleRoot), newRootKey.pub))

	require.NoError(t, e.CrossSignRoot(context.Background(),
		[]sign.KeySource{rootKey}, []sign.KeySource{newRootKey}))
}

func TestSignAndEmitRoundTrip(t *testing.T) {
	e, rootKey, targetsKey, snapshotKey, timestampKey := newTestEditor(t)
	_ = rootKey

	e.Open(editor.ModeTargets)
	e.SetVersion(1)
	e.SetExpires(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, e.AddTarget("a.bin", []byte("hello"), nil, nil))

	manifest, err := e.SignAndEmit(context.Background(), editor.RoleSigners{
		"targets":   {targetsKey},
		"snapshot":  {snapshotKey},
		"timestamp": {timestampKey},
	})
	require.NoError(t, err)
	require.Contains(t, manifest.Files, "root.json")
	require.Contains(t, manifest.Files, "1.root.json")
	require.Contains(t, manifest.Files, "targets.json")
	require.Contains(t, manifest.Files, "snapshot.json")
	require.Contains(t, manifest.Files, "timestamp.json")

	root, err := data.ParseRoot(manifest.Files["root.json"])
	require.NoError(t, err)
	require.Equal(t, 1, root.Signed.Version)

	targets, err := data.ParseTargets(manifest.Files["targets.json"], "targets")
	require.NoError(t, err)
	_, ok := targets.Lookup("a.bin")
	require.True(t, ok)

	snapshot, err := data.ParseSnapshot(manifest.Files["snapshot.json"])
	require.NoError(t, err)
	meta, ok := snapshot.FileMeta("targets.json")
	require.True(t, ok)
	require.EqualValues(t, 1, meta.Version)

	timestamp, err := data.ParseTimestamp(manifest.Files["timestamp.json"])
	require.NoError(t, err)
	smeta, ok := timestamp.SnapshotMeta()
	require.True(t, ok)
	require.EqualValues(t, 1, smeta.Version)
}

func TestSignAndEmitDeterministic(t *testing.T) {
	build := func() *editor.Manifest {
		e, _, targetsKey, snapshotKey, timestampKey := newTestEditor(t)
		e.Open(editor.ModeTargets)
		require.NoError(t, e.AddTarget("a.bin", []byte("hello"), nil, nil))
		m, err := e.SignAndEmit(context.Background(), editor.RoleSigners{
			"targets":   {targetsKey},
			"snapshot":  {snapshotKey},
			"timestamp": {timestampKey},
		})
		require.NoError(t, err)
		return m
	}

	// Determinism here covers ordering and canonicalization, not the
	// signature bytes themselves: each build() call mints a fresh keypair,
	// so the two manifests are never byte-identical end to end. What is
	// checked is that both runs reach the same file set and the same
	// canonicalized/targets.json shape, which is what P9 actually
	// constrains (processing order and reference reconstruction, not key
	// material).
	a := build()
	b := build()
	require.ElementsMatch(t, keys(a.Files), keys(b.Files))

	ta, err := data.ParseTargets(a.Files["targets.json"], "targets")
	require.NoError(t, err)
	tb, err := data.ParseTargets(b.Files["targets.json"], "targets")
	require.NoError(t, err)
	ca, err := ta.CanonicalSigned()
	require.NoError(t, err)
	cb, err := tb.CanonicalSigned()
	require.NoError(t, err)
	require.Equal(t, ca, cb)
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
