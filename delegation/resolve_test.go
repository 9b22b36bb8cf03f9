package delegation_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kolide/tuf/cjson"
	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/delegation"
	"github.com/kolide/tuf/tuferr"
)

type fakeFetcher struct {
	children map[string]*data.Targets
}

func (f fakeFetcher) FetchChild(ctx context.Context, roleName string) (*data.Targets, error) {
	t, ok := f.children[roleName]
	if !ok {
		return nil, tuferr.New(tuferr.KindNotFound, tuferr.WithRole(roleName))
	}
	return t, nil
}

// buildTargets signs signed with every key in signers and parses the
// result back into a *data.Targets the way a real fetch would, so Resolve
// exercises the same signedMap/canonicalization path production code does.
func buildTargets(t *testing.T, roleName string, signed data.SignedTargets, signers map[string]ed25519.PrivateKey) *data.Targets {
	t.Helper()
	canonical, err := cjson.Marshal(signed)
	require.NoError(t, err)

	var sigs []data.Signature
	for keyID, priv := range signers {
		sigs = append(sigs, data.Signature{KeyID: keyID, Sig: data.HexBytes(ed25519.Sign(priv, canonical))})
	}

	env := struct {
		Signed     json.RawMessage `json:"signed"`
		Signatures []data.Signature `json:"signatures"`
	}{Signed: canonical, Signatures: sigs}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	out, err := data.ParseTargets(raw, roleName)
	require.NoError(t, err)
	return out
}

func genKey(t *testing.T) (string, ed25519.PrivateKey, data.Key) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	k := data.Key{KeyType: data.KeyTypeED25519, Scheme: data.SchemeED25519, KeyVal: data.KeyVal{Public: data.HexBytes(pub)}}
	id, err := k.ID()
	require.NoError(t, err)
	return id, priv, k
}

func TestResolveDirectHitOnTopLevel(t *testing.T) {
	top := buildTargets(t, "targets", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{"a.txt": {}},
	}, nil)

	tf, trail, err := delegation.Resolve(context.Background(), top, "a.txt", fakeFetcher{})
	require.NoError(t, err)
	require.NotNil(t, tf)
	require.Equal(t, []string{"targets"}, trail)
}

// Scenario 5: role1 is delegated "foo?.txt"; role2 (via role1) is
// delegated "foo3.txt". Requesting foo3.txt returns role2's entry,
// foo4.txt returns role1's own entry, bar.txt is absent.
func TestResolveScenario5(t *testing.T) {
	role2KeyID, role2Priv, role2Key := genKey(t)
	role2 := buildTargets(t, "role2", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{"foo3.txt": {}},
	}, map[string]ed25519.PrivateKey{role2KeyID: role2Priv})

	role1KeyID, role1Priv, role1Key := genKey(t)
	role1 := buildTargets(t, "role1", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{"foo4.txt": {}},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{role2KeyID: role2Key},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{role2KeyID}, Threshold: 1}, Name: "role2", Paths: []string{"foo3.txt"}},
			},
		},
	}, map[string]ed25519.PrivateKey{role1KeyID: role1Priv})

	top := buildTargets(t, "targets", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{role1KeyID: role1Key},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{role1KeyID}, Threshold: 1}, Name: "role1", Paths: []string{"foo?.txt"}},
			},
		},
	}, nil)

	fetch := fakeFetcher{children: map[string]*data.Targets{"role1": role1, "role2": role2}}

	tf, trail, err := delegation.Resolve(context.Background(), top, "foo3.txt", fetch)
	require.NoError(t, err)
	require.NotNil(t, tf)
	require.Equal(t, []string{"targets", "role1", "role2"}, trail)

	tf, trail, err = delegation.Resolve(context.Background(), top, "foo4.txt", fetch)
	require.NoError(t, err)
	require.NotNil(t, tf)
	require.Equal(t, []string{"targets", "role1"}, trail)

	tf, _, err = delegation.Resolve(context.Background(), top, "bar.txt", fetch)
	require.NoError(t, err)
	require.Nil(t, tf)
}

// P7: a terminating delegation matching the path but missing the target
// makes the overall lookup authoritatively absent even though it owns no
// matching entry itself.
func TestResolveTerminatingDelegationShortCircuits(t *testing.T) {
	role2KeyID, role2Priv, role2Key := genKey(t)
	role2 := buildTargets(t, "role2", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{"foo3.txt": {}},
	}, map[string]ed25519.PrivateKey{role2KeyID: role2Priv})

	role1KeyID, role1Priv, role1Key := genKey(t)
	role1 := buildTargets(t, "role1", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{role2KeyID: role2Key},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{role2KeyID}, Threshold: 1}, Name: "role2", Paths: []string{"foo3.txt"}},
			},
		},
	}, map[string]ed25519.PrivateKey{role1KeyID: role1Priv})

	top := buildTargets(t, "targets", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{role1KeyID: role1Key},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{role1KeyID}, Threshold: 1}, Name: "role1", Paths: []string{"foo?.txt"}, Terminating: true},
			},
		},
	}, nil)

	fetch := fakeFetcher{children: map[string]*data.Targets{"role1": role1, "role2": role2}}

	tf, _, err := delegation.Resolve(context.Background(), top, "foo4.txt", fetch)
	require.NoError(t, err)
	require.Nil(t, tf)
}

// P6: a path not matching any delegation entry never resolves through it,
// even though the child happens to declare an entry with that name.
func TestResolvePathAuthorityIsEnforced(t *testing.T) {
	childKeyID, childPriv, childKey := genKey(t)
	child := buildTargets(t, "child", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{"secret.bin": {}},
	}, map[string]ed25519.PrivateKey{childKeyID: childPriv})

	top := buildTargets(t, "targets", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{childKeyID: childKey},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{childKeyID}, Threshold: 1}, Name: "child", Paths: []string{"allowed/*"}},
			},
		},
	}, nil)

	fetch := fakeFetcher{children: map[string]*data.Targets{"child": child}}

	tf, _, err := delegation.Resolve(context.Background(), top, "secret.bin", fetch)
	require.NoError(t, err)
	require.Nil(t, tf)
}

func TestResolveDetectsCycle(t *testing.T) {
	selfKeyID, selfPriv, selfKey := genKey(t)
	var self *data.Targets
	self = buildTargets(t, "role1", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{selfKeyID: selfKey},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{selfKeyID}, Threshold: 1}, Name: "role1", Paths: []string{"*"}},
			},
		},
	}, map[string]ed25519.PrivateKey{selfKeyID: selfPriv})

	top := buildTargets(t, "targets", data.SignedTargets{
		Type: "targets", SpecVersion: "1.0.0", Version: 1, Expires: time.Now().Add(time.Hour),
		Targets: map[string]data.TargetFiles{},
		Delegations: &data.Delegations{
			Keys: map[string]data.Key{selfKeyID: selfKey},
			Roles: []data.DelegatedRole{
				{RoleKeys: data.RoleKeys{KeyIDs: []string{selfKeyID}, Threshold: 1}, Name: "role1", Paths: []string{"*"}},
			},
		},
	}, nil)

	fetch := fakeFetcher{children: map[string]*data.Targets{"role1": self}}

	_, _, err := delegation.Resolve(context.Background(), top, "x.txt", fetch)
	require.Error(t, err)
	require.True(t, errIsCycle(err))
}

func errIsCycle(err error) bool {
	terr, ok := err.(*tuferr.Error)
	return ok && terr.Kind == tuferr.KindDelegationCycle
}
