package client_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"
	"time"

	realclock "github.com/WatchBeam/clock"
	"github.com/stretchr/testify/require"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/client"
	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

const baseURL = "https://meta.example.test"

type keypair struct {
	id   string
	priv ed25519.PrivateKey
	pub  data.Key
}

func genKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	k := data.Key{KeyType: data.KeyTypeED25519, Scheme: data.SchemeED25519, KeyVal: data.KeyVal{Public: data.HexBytes(pub)}}
	id, err := k.ID()
	require.NoError(t, err)
	return keypair{id: id, priv: priv, pub: k}
}

func signEnvelope(t *testing.T, signed interface{}, kps ...keypair) []byte {
	t.Helper()
	canonical, err := cjson.Marshal(signed)
	require.NoError(t, err)
	var sigs []data.Signature
	for _, kp := range kps {
		sigs = append(sigs, data.Signature{KeyID: kp.id, Sig: data.HexBytes(ed25519.Sign(kp.priv, canonical))})
	}
	env := struct {
		Signed     json.RawMessage  `json:"signed"`
		Signatures []data.Signature `json:"signatures"`
	}{Signed: canonical, Signatures: sigs}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

type roleset struct {
	root, timestamp, snapshot, targets keypair
}

func genRoleset(t *testing.T) roleset {
	return roleset{
		root:      genKeypair(t),
		timestamp: genKeypair(t),
		snapshot:  genKeypair(t),
		targets:   genKeypair(t),
	}
}

func buildRoot(t *testing.T, version int, expires time.Time, rs roleset, signers ...keypair) []byte {
	t.Helper()
	sr := data.SignedRoot{
		Type: "root", SpecVersion: "1.0.0", Version: version, Expires: expires,
		Keys: map[string]data.Key{
			rs.root.id: rs.root.pub, rs.timestamp.id: rs.timestamp.pub,
			rs.snapshot.id: rs.snapshot.pub, rs.targets.id: rs.targets.pub,
		},
		Roles: map[data.Role]data.RoleKeys{
			data.RoleRoot:      {KeyIDs: []string{rs.root.id}, Threshold: 1},
			data.RoleTimestamp: {KeyIDs: []string{rs.timestamp.id}, Threshold: 1},
			data.RoleSnapshot:  {KeyIDs: []string{rs.snapshot.id}, Threshold: 1},
			data.RoleTargets:   {KeyIDs: []string{rs.targets.id}, Threshold: 1},
		},
	}
	if len(signers) == 0 {
		signers = []keypair{rs.root}
	}
	return signEnvelope(t, sr, signers...)
}

func buildTimestamp(t *testing.T, version int, expires time.Time, snapshotVersion int64, kp keypair) []byte {
	t.Helper()
	st := data.SignedTimestamp{
		Type: "timestamp", SpecVersion: "1.0.0", Version: version, Expires: expires,
		Meta: map[string]data.MetaFiles{"snapshot.json": {Version: snapshotVersion}},
	}
	return signEnvelope(t, st, kp)
}

func buildSnapshot(t *testing.T, version int, expires time.Time, targetsVersion int64, kp keypair) []byte {
	t.Helper()
	ss := data.SignedSnapshot{
		Type: "snapshot", SpecVersion: "1.0.0", Version: version, Expires: expires,
		Meta: map[string]data.MetaFiles{"targets.json": {Version: targetsVersion}},
	}
	return signEnvelope(t, ss, kp)
}

func buildTargets(t *testing.T, version int, expires time.Time, entries map[string]data.TargetFiles, kp keypair) []byte {
	t.Helper()
	tg := data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: version, Expires: expires,
		Targets: entries,
	}
	return signEnvelope(t, tg, kp)
}

type memFetcher struct {
	docs map[string][]byte
}

func (f memFetcher) Fetch(ctx context.Context, url string, maxBytes int64) (io.ReadCloser, int64, error) {
	b, ok := f.docs[url]
	if !ok {
		return nil, 0, tuferr.New(tuferr.KindNotFound, tuferr.WithURL(url))
	}
	if maxBytes > 0 && int64(len(b)) > maxBytes {
		return nil, 0, tuferr.New(tuferr.KindOversized, tuferr.WithURL(url))
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func standardRepo(t *testing.T, rs roleset, now time.Time) memFetcher {
	far := now.Add(365 * 24 * time.Hour)
	return memFetcher{docs: map[string][]byte{
		baseURL + "/timestamp.json": buildTimestamp(t, 1, far, 1, rs.timestamp),
		baseURL + "/snapshot.json":  buildSnapshot(t, 1, far, 1, rs.snapshot),
		baseURL + "/targets.json":   buildTargets(t, 1, far, map[string]data.TargetFiles{}, rs.targets),
	}}
}

func newTestClient(t *testing.T, rootBytes []byte, fetcher memFetcher, now time.Time) *client.Client {
	t.Helper()
	c, err := client.New(client.Settings{
		MetadataBaseURL: baseURL,
		TargetsBaseURL:  baseURL + "/targets",
		Clock:           realclock.NewMockClock(now),
	}, fetcher, rootBytes)
	require.NoError(t, err)
	return c
}

func TestUpdateHappyPath(t *testing.T) {
	rs := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	root := buildRoot(t, 1, now.Add(time.Hour*24*365), rs)
	fetcher := standardRepo(t, rs, now)
	fetcher.docs[baseURL+"/1.root.json"] = root

	c := newTestClient(t, root, fetcher, now)
	state, warnings, err := c.Update(context.Background())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 1, state.Timestamp.Signed.Version)
	require.Equal(t, 1, state.Snapshot.Signed.Version)
	require.Equal(t, 1, state.Targets.Signed.Version)
}

// Scenario 2: after accepting timestamp v5, serving v4 must fail with
// Rollback and must not disturb the previously accepted state.
func TestUpdateRejectsTimestampRollback(t *testing.T) {
	rs := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(time.Hour * 24 * 365)
	root := buildRoot(t, 1, far, rs)

	fetcher := memFetcher{docs: map[string][]byte{
		baseURL + "/1.root.json":    root,
		baseURL + "/timestamp.json": buildTimestamp(t, 5, far, 1, rs.timestamp),
		baseURL + "/snapshot.json":  buildSnapshot(t, 1, far, 1, rs.snapshot),
		baseURL + "/targets.json":   buildTargets(t, 1, far, map[string]data.TargetFiles{}, rs.targets),
	}}

	c := newTestClient(t, root, fetcher, now)
	_, _, err := c.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, c.State().Timestamp.Signed.Version)

	fetcher.docs[baseURL+"/timestamp.json"] = buildTimestamp(t, 4, far, 1, rs.timestamp)
	_, _, err = c.Update(context.Background())
	require.Error(t, err)
	terr, ok := errors_Cause(err)
	require.True(t, ok)
	require.Equal(t, tuferr.KindRollback, terr.Kind)

	// Previously accepted state is untouched.
	require.Equal(t, 5, c.State().Timestamp.Signed.Version)
}

// P4: a snapshot that regresses a file's recorded version after a newer
// one was already accepted fails with Rollback.
func TestUpdateRejectsSnapshotFileRollback(t *testing.T) {
	rs := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(time.Hour * 24 * 365)
	root := buildRoot(t, 1, far, rs)

	fetcher := memFetcher{docs: map[string][]byte{
		baseURL + "/1.root.json":    root,
		baseURL + "/timestamp.json": buildTimestamp(t, 1, far, 5, rs.timestamp),
		baseURL + "/snapshot.json":  buildSnapshot(t, 5, far, 5, rs.snapshot),
		baseURL + "/targets.json":   buildTargets(t, 5, far, map[string]data.TargetFiles{}, rs.targets),
	}}

	c := newTestClient(t, root, fetcher, now)
	_, _, err := c.Update(context.Background())
	require.NoError(t, err)

	// Timestamp now claims an older snapshot (targets.json regressing
	// from version 5 to version 4).
	fetcher.docs[baseURL+"/timestamp.json"] = buildTimestamp(t, 2, far, 4, rs.timestamp)
	fetcher.docs[baseURL+"/snapshot.json"] = buildSnapshot(t, 4, far, 4, rs.snapshot)

	_, _, err = c.Update(context.Background())
	require.Error(t, err)
	terr, ok := errors_Cause(err)
	require.True(t, ok)
	require.Equal(t, tuferr.KindRollback, terr.Kind)
}

// Scenario 4: root v1 expired, root v2 cross-signed by both key sets,
// accepted at a clock between v1's expiry and v2's expiry.
func TestUpdateChainsThroughExpiredRoot(t *testing.T) {
	rs1 := genRoleset(t)
	v1Expires := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	root1 := buildRoot(t, 1, v1Expires, rs1)

	rs2 := rs1
	rs2.root = genKeypair(t) // rotate only the root-role key
	v2Expires := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	root2 := buildRoot(t, 2, v2Expires, rs2, rs1.root, rs2.root) // cross-signed

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fetcher := standardRepo(t, rs2, now)
	fetcher.docs[baseURL+"/1.root.json"] = root1
	fetcher.docs[baseURL+"/2.root.json"] = root2

	c := newTestClient(t, root1, fetcher, now)
	state, _, err := c.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, state.Root.Signed.Version)
}

// P5: a root chain gap (N then N+2, skipping N+1) is simply not reachable
// through NotFound-terminated walking -- the server never advertises
// 2.root.json, so the walk halts at N and the (still trusted, unexpired)
// root is accepted as final.
func TestUpdateRootChainGapHaltsAtLastInstalled(t *testing.T) {
	rs := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(time.Hour * 24 * 365)
	root1 := buildRoot(t, 1, far, rs)

	fetcher := standardRepo(t, rs, now)
	fetcher.docs[baseURL+"/1.root.json"] = root1
	// 2.root.json absent; 3.root.json present but unreachable without 2.
	fetcher.docs[baseURL+"/3.root.json"] = buildRoot(t, 3, far, rs)

	c := newTestClient(t, root1, fetcher, now)
	state, _, err := c.Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, state.Root.Signed.Version)
}

// P5: a new root signed only by its own (new) keys, without the previous
// root's keys cross-signing it, is rejected.
func TestUpdateRootChainRejectsNonCrossSignedRoot(t *testing.T) {
	rs1 := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(time.Hour * 24 * 365)
	root1 := buildRoot(t, 1, far, rs1)

	rs2 := rs1
	rs2.root = genKeypair(t)
	root2 := buildRoot(t, 2, far, rs2, rs2.root) // missing rs1.root's signature

	fetcher := standardRepo(t, rs2, now)
	fetcher.docs[baseURL+"/1.root.json"] = root1
	fetcher.docs[baseURL+"/2.root.json"] = root2

	c := newTestClient(t, root1, fetcher, now)
	_, _, err := c.Update(context.Background())
	require.Error(t, err)
}

// P3/scenario 6: a targets file with threshold 2 and two signatures from
// the same keyid fails with Threshold.
func TestUpdateRejectsDuplicateKeyIDThreshold(t *testing.T) {
	rs := genRoleset(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(time.Hour * 24 * 365)

	sr := data.SignedRoot{
		Type: "root", SpecVersion: "1.0.0", Version: 1, Expires: far,
		Keys: map[string]data.Key{
			rs.root.id: rs.root.pub, rs.timestamp.id: rs.timestamp.pub,
			rs.snapshot.id: rs.snapshot.pub, rs.targets.id: rs.targets.pub,
		},
		Roles: map[data.Role]data.RoleKeys{
			data.RoleRoot:      {KeyIDs: []string{rs.root.id}, Threshold: 1},
			data.RoleTimestamp: {KeyIDs: []string{rs.timestamp.id}, Threshold: 1},
			data.RoleSnapshot:  {KeyIDs: []string{rs.snapshot.id}, Threshold: 1},
			// Threshold 2 over a single authorized key: even if that one
			// key signs twice it can never satisfy 2 distinct keyids.
			data.RoleTargets: {KeyIDs: []string{rs.targets.id}, Threshold: 2},
		},
	}
	root := signEnvelope(t, sr, rs.root)

	tg := data.SignedTargets{Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: far, Targets: map[string]data.TargetFiles{}}
	canonical, err := cjson.Marshal(tg)
	require.NoError(t, err)
	sig := data.Signature{KeyID: rs.targets.id, Sig: data.HexBytes(ed25519.Sign(rs.targets.priv, canonical))}
	env := struct {
		Signed     json.RawMessage  `json:"signed"`
		Signatures []data.Signature `json:"signatures"`
	}{Signed: canonical, Signatures: []data.Signature{sig, sig}}
	targetsRaw, err := json.Marshal(env)
	require.NoError(t, err)

	fetcher := memFetcher{docs: map[string][]byte{
		baseURL + "/1.root.json":    root,
		baseURL + "/timestamp.json": buildTimestamp(t, 1, far, 1, rs.timestamp),
		baseURL + "/snapshot.json":  buildSnapshot(t, 1, far, 1, rs.snapshot),
		baseURL + "/targets.json":   targetsRaw,
	}}

	c := newTestClient(t, root, fetcher, now)
	_, _, err = c.Update(context.Background())
	require.Error(t, err)
	terr, ok := errors_Cause(err)
	require.True(t, ok)
	require.Equal(t, tuferr.KindThreshold, terr.Kind)
}

func errors_Cause(err error) (*tuferr.Error, bool) {
	for err != nil {
		if terr, ok := err.(*tuferr.Error); ok {
			return terr, true
		}
		c, ok := err.(interface{ Cause() error })
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}
