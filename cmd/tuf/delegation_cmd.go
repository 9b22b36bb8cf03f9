package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/editor"
)

func newDelegationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delegation",
		Short: "Create and maintain delegated-targets roles",
	}
	cmd.AddCommand(
		newDelegationCreateRoleCmd(),
		newDelegationAddRoleCmd(),
		newDelegationUpdateCmd(),
		newDelegationAddKeyCmd(),
		newDelegationRemoveKeyCmd(),
		newDelegationRemoveRoleCmd(),
	)
	return cmd
}

func openAndResolveDelegation(cmd *cobra.Command, f *commonFlags, parent string) (context.Context, *editor.Editor, error) {
	ctx := cmd.Context()
	st, err := openStore(f)
	if err != nil {
		return nil, nil, err
	}
	e := newEditor(f, st)
	if err := loadRepo(ctx, st, e); err != nil {
		return nil, nil, err
	}
	e.Open(editor.Mode(parent))
	return ctx, e, nil
}

func newDelegationCreateRoleCmd() *cobra.Command {
	f := &commonFlags{}
	var parent, name string
	var paths, pathHashPrefixes []string
	var terminating bool
	cmd := &cobra.Command{
		Use:   "create-role",
		Short: "Delegate a new targets role from an already-open parent role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" || name == "" {
				return errors.New("--parent and --name are required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, parent)
			if err != nil {
				return err
			}
			sources, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			keys, err := publicKeys(ctx, sources)
			if err != nil {
				return err
			}
			if err := e.DelegateRole(name, keys, f.threshold, paths, pathHashPrefixes, terminating); err != nil {
				return err
			}
			if err := e.Save(ctx); err != nil {
				return err
			}
			e.Open(editor.Mode(name))
			if f.version != 0 {
				e.SetVersion(f.version)
			} else {
				e.SetVersion(1)
			}
			expires, err := parseExpires(f)
			if err != nil {
				return err
			}
			e.SetExpires(expires)
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&parent, "parent", "targets", "name of the already-declared role to delegate from")
	cmd.Flags().StringVar(&name, "name", "", "name of the new delegated role")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "glob pattern this delegation is authoritative for, may be repeated")
	cmd.Flags().StringArrayVar(&pathHashPrefixes, "path-hash-prefix", nil, "hex digest prefix this delegation is authoritative for, may be repeated")
	cmd.Flags().BoolVar(&terminating, "terminating", false, "stop delegation search here on a path match even without a result")
	return cmd
}

// newDelegationAddRoleCmd attaches metadata a party outside the parent's
// own keys already signed for a delegated role, the "attach an externally
// signed role" half of spec.md §6's delegation surface (distinct from
// create-role, which starts a fresh, empty delegation in this session).
func newDelegationAddRoleCmd() *cobra.Command {
	f := &commonFlags{}
	var parent, name, incomingMetadata string
	var paths, pathHashPrefixes []string
	var terminating bool
	cmd := &cobra.Command{
		Use:   "add-role",
		Short: "Attach an already-signed delegated-targets document to a parent role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" || name == "" || incomingMetadata == "" {
				return errors.New("--parent, --name, and --incoming-metadata are required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, parent)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(incomingMetadata)
			if err != nil {
				return errors.Wrapf(err, "reading %q", incomingMetadata)
			}
			preSigned, err := data.ParseTargets(raw, name)
			if err != nil {
				return errors.Wrapf(err, "parsing %q", incomingMetadata)
			}
			sources, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			keys, err := publicKeys(ctx, sources)
			if err != nil {
				return err
			}
			if err := e.AddRole(name, preSigned, keys, f.threshold, paths, pathHashPrefixes, terminating); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&parent, "parent", "targets", "name of the already-declared role to delegate from")
	cmd.Flags().StringVar(&name, "name", "", "name of the delegated role being attached")
	cmd.Flags().StringVar(&incomingMetadata, "incoming-metadata", "", "path to the already-signed NAME.json document")
	cmd.Flags().StringArrayVar(&paths, "path", nil, "glob pattern this delegation is authoritative for, may be repeated")
	cmd.Flags().StringArrayVar(&pathHashPrefixes, "path-hash-prefix", nil, "hex digest prefix this delegation is authoritative for, may be repeated")
	cmd.Flags().BoolVar(&terminating, "terminating", false, "stop delegation search here on a path match even without a result")
	return cmd
}

func newDelegationUpdateCmd() *cobra.Command {
	f := &commonFlags{}
	var role string
	cmd := &cobra.Command{
		Use:   "update-delegated-targets",
		Short: "Bump an already-declared delegated role's version and re-sign it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return errors.New("--role is required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, role)
			if err != nil {
				return err
			}
			if f.version != 0 {
				e.SetVersion(f.version)
			}
			expires, err := parseExpires(f)
			if err != nil {
				return err
			}
			e.SetExpires(expires)
			signers, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			if err := e.Close(ctx, signers...); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&role, "role", "", "name of the delegated role to update")
	return cmd
}

func newDelegationAddKeyCmd() *cobra.Command {
	f := &commonFlags{}
	var parent, role string
	cmd := &cobra.Command{
		Use:   "add-key",
		Short: "Authorize a key to sign for a delegated role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" || role == "" {
				return errors.New("--parent and --role are required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, parent)
			if err != nil {
				return err
			}
			sources, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			keys, err := publicKeys(ctx, sources)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := e.AddKey(role, k); err != nil {
					return err
				}
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&parent, "parent", "targets", "name of the role that declares this delegation")
	cmd.Flags().StringVar(&role, "role", "", "name of the delegated role to authorize the key for")
	return cmd
}

func newDelegationRemoveKeyCmd() *cobra.Command {
	f := &commonFlags{}
	var parent, role, keyID string
	cmd := &cobra.Command{
		Use:   "remove-key",
		Short: "Revoke a key's authority to sign for a delegated role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" || role == "" || keyID == "" {
				return errors.New("--parent, --role, and --key-id are required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, parent)
			if err != nil {
				return err
			}
			if err := e.RemoveKey(role, keyID); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&parent, "parent", "targets", "name of the role that declares this delegation")
	cmd.Flags().StringVar(&role, "role", "", "name of the delegated role to revoke the key from")
	cmd.Flags().StringVar(&keyID, "key-id", "", "key id to revoke")
	return cmd
}

func newDelegationRemoveRoleCmd() *cobra.Command {
	f := &commonFlags{}
	var parent, role string
	var recursive bool
	cmd := &cobra.Command{
		Use:   "remove-role",
		Short: "Remove a delegated role from its parent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if parent == "" || role == "" {
				return errors.New("--parent and --role are required")
			}
			ctx, e, err := openAndResolveDelegation(cmd, f, parent)
			if err != nil {
				return err
			}
			if err := e.RemoveRole(role, recursive); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&parent, "parent", "targets", "name of the role that declares this delegation")
	cmd.Flags().StringVar(&role, "role", "", "name of the delegated role to remove")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "also discard every role this one transitively delegates to")
	return cmd
}
