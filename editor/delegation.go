package editor

import (
	"github.com/pkg/errors"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/tuferr"
)

// DelegateRole creates child as a new delegation of the currently open
// targets role, installing keys into the parent's delegations.keys map and
// starting an empty working document for child, spec.md §4.9's
// "delegate_role" bullet.
func (e *Editor) DelegateRole(child string, keys []data.Key, threshold int, paths, pathHashPrefixes []string, terminating bool) error {
	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if doc.signed.Delegations == nil {
		doc.signed.Delegations = &data.Delegations{Keys: map[string]data.Key{}, Roles: []data.DelegatedRole{}}
	}

	keyIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		id, err := k.ID()
		if err != nil {
			return err
		}
		doc.signed.Delegations.Keys[id] = k
		keyIDs = append(keyIDs, id)
	}

	entry := data.DelegatedRole{
		RoleKeys:         data.RoleKeys{KeyIDs: keyIDs, Threshold: threshold},
		Name:             child,
		Paths:            paths,
		PathHashPrefixes: pathHashPrefixes,
		Terminating:      terminating,
	}
	if err := entry.Verify(); err != nil {
		return errors.Wrap(err, "editor: delegate_role")
	}
	doc.signed.Delegations.Roles = append(doc.signed.Delegations.Roles, entry)

	e.targetsDocFor(child)
	return nil
}

// AddRole attaches metadata a party outside the parent's own keys already
// signed for child, recording the delegation entry on the currently open
// role and installing the pre-signed document as-is (spec.md §4.9
// "add_role").
func (e *Editor) AddRole(child string, preSigned *data.Targets, keys []data.Key, threshold int, paths, pathHashPrefixes []string, terminating bool) error {
	if err := e.DelegateRole(child, keys, threshold, paths, pathHashPrefixes, terminating); err != nil {
		return err
	}
	e.targets[child] = &targetsDoc{signed: preSigned.Signed, sigs: append([]data.Signature(nil), preSigned.Signatures...)}
	return nil
}

// UpdateRole replaces an already-known delegated role's metadata,
// rejecting a new version that does not strictly advance (spec.md §4.9
// "update_role").
func (e *Editor) UpdateRole(name string, preSigned *data.Targets) error {
	existing, ok := e.targets[name]
	if !ok {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(name), tuferr.WithCause(errors.New("editor: unknown delegated role")))
	}
	if preSigned.Signed.Version <= existing.signed.Version {
		return tuferr.New(tuferr.KindRollback, tuferr.WithRole(name), tuferr.WithVersion(preSigned.Signed.Version),
			tuferr.WithCause(errors.Errorf("new version %d does not advance past %d", preSigned.Signed.Version, existing.signed.Version)))
	}
	e.targets[name] = &targetsDoc{signed: preSigned.Signed, sigs: append([]data.Signature(nil), preSigned.Signatures...)}
	return nil
}

// RemoveRole removes child from the currently open role's delegations.
// recursive additionally discards every role child itself (transitively)
// delegates to, since once child is gone those descendants are no longer
// reachable from any parent the editor still tracks (spec.md §4.9
// "remove_role").
func (e *Editor) RemoveRole(child string, recursive bool) error {
	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if doc.signed.Delegations == nil {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(child), tuferr.WithCause(errors.New("editor: open role has no delegations")))
	}

	kept := doc.signed.Delegations.Roles[:0]
	found := false
	for _, r := range doc.signed.Delegations.Roles {
		if r.Name == child {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(child), tuferr.WithCause(errors.New("editor: delegation not found")))
	}
	doc.signed.Delegations.Roles = kept

	if recursive {
		e.pruneDescendants(child)
	}
	delete(e.targets, child)
	return nil
}

func (e *Editor) pruneDescendants(name string) {
	doc, ok := e.targets[name]
	if !ok || doc.signed.Delegations == nil {
		return
	}
	for _, r := range doc.signed.Delegations.Roles {
		e.pruneDescendants(r.Name)
		delete(e.targets, r.Name)
	}
}

// AddKey authorizes key to sign for role. In root mode, role is one of
// root/timestamp/snapshot/targets and the key is added to root.json's own
// {keys, roles} tables. Otherwise role must name a delegation already
// declared on the currently open targets role, and key is added to that
// delegation's keyids and to the parent's delegations.keys map (spec.md
// §4.9 "add-key").
func (e *Editor) AddKey(role string, key data.Key) error {
	id, err := key.ID()
	if err != nil {
		return err
	}
	if e.mode == ModeRoot {
		rk := e.root.Roles[data.Role(role)]
		if !rk.HasKeyID(id) {
			rk.KeyIDs = append(rk.KeyIDs, id)
		}
		e.root.Roles[data.Role(role)] = rk
		e.root.Keys[id] = key
		return nil
	}

	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if doc.signed.Delegations == nil {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(role), tuferr.WithCause(errors.New("editor: open role has no delegations")))
	}
	for i, r := range doc.signed.Delegations.Roles {
		if r.Name != role {
			continue
		}
		if !r.HasKeyID(id) {
			doc.signed.Delegations.Roles[i].KeyIDs = append(doc.signed.Delegations.Roles[i].KeyIDs, id)
		}
		doc.signed.Delegations.Keys[id] = key
		return nil
	}
	return tuferr.New(tuferr.KindParse, tuferr.WithRole(role), tuferr.WithCause(errors.New("editor: delegated role not found")))
}

// RemoveKey revokes keyID from role, symmetric with AddKey. The key object
// is dropped from the owning {keys} map only once no other role in that
// same table still references it.
func (e *Editor) RemoveKey(role, keyID string) error {
	if e.mode == ModeRoot {
		rk, ok := e.root.Roles[data.Role(role)]
		if !ok {
			return tuferr.New(tuferr.KindParse, tuferr.WithRole(role), tuferr.WithCause(errors.New("editor: root does not declare this role")))
		}
		rk.KeyIDs = removeString(rk.KeyIDs, keyID)
		e.root.Roles[data.Role(role)] = rk
		if !anyRoleUsesKey(e.root.Roles, keyID) {
			delete(e.root.Keys, keyID)
		}
		return nil
	}

	doc, err := e.currentTargetsDoc()
	if err != nil {
		return err
	}
	if doc.signed.Delegations == nil {
		return tuferr.New(tuferr.KindParse, tuferr.WithRole(role), tuferr.WithCause(errors.New("editor: open role has no delegations")))
	}
	for i, r := range doc.signed.Delegations.Roles {
		if r.Name != role {
			continue
		}
		doc.signed.Delegations.Roles[i].KeyIDs = removeString(r.KeyIDs, keyID)
		stillUsed := false
		for _, rr := range doc.signed.Delegations.Roles {
			if rr.HasKeyID(keyID) {
				stillUsed = true
				break
			}
		}
		if !stillUsed {
			delete(doc.signed.Delegations.Keys, keyID)
		}
		return nil
	}
	return tuferr.New(tuferr.KindParse, tuferr.WithRole(role), tuferr.WithCause(errors.New("editor: delegated role not found")))
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func anyRoleUsesKey(roles map[data.Role]data.RoleKeys, keyID string) bool {
	for _, rk := range roles {
		if rk.HasKeyID(keyID) {
			return true
		}
	}
	return false
}
