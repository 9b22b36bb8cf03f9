package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/editor"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Create and maintain root.json",
	}
	cmd.AddCommand(
		newRootInitCmd(),
		newRootExpireCmd(),
		newRootSetThresholdCmd(),
		newRootAddKeyCmd(),
		newRootRemoveKeyCmd(),
		newRootSignCmd(),
		newRootCrossSignCmd(),
		newRootGenRSAKeyCmd(),
	)
	return cmd
}

func newRootInitCmd() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start or bump root.json's version, opening it for editing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
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
	return cmd
}

func newRootExpireCmd() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Set root.json's expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
			expires, err := parseExpires(f)
			if err != nil {
				return err
			}
			e.SetExpires(expires)
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	return cmd
}

func newRootSetThresholdCmd() *cobra.Command {
	f := &commonFlags{}
	var role string
	cmd := &cobra.Command{
		Use:   "set-threshold",
		Short: "Set the signing threshold for a top-level role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return errors.New("--role is required")
			}
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
			if err := e.SetThreshold(data.Role(role), f.threshold); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&role, "role", "", "root/timestamp/snapshot/targets")
	return cmd
}

func newRootAddKeyCmd() *cobra.Command {
	f := &commonFlags{}
	var role string
	cmd := &cobra.Command{
		Use:   "add-key",
		Short: "Authorize a key to sign for a top-level role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return errors.New("--role is required")
			}
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
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
	cmd.Flags().StringVar(&role, "role", "", "root/timestamp/snapshot/targets")
	return cmd
}

func newRootRemoveKeyCmd() *cobra.Command {
	f := &commonFlags{}
	var role, keyID string
	cmd := &cobra.Command{
		Use:   "remove-key",
		Short: "Revoke a key's authority to sign for a top-level role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" || keyID == "" {
				return errors.New("--role and --key-id are required")
			}
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
			if err := e.RemoveKey(role, keyID); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringVar(&role, "role", "", "root/timestamp/snapshot/targets")
	cmd.Flags().StringVar(&keyID, "key-id", "", "key id to revoke")
	return cmd
}

func newRootSignCmd() *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the in-progress root.json with the given keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)
			signers, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			if err := e.SignRoot(ctx, signers...); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	return cmd
}

func newRootCrossSignCmd() *cobra.Command {
	f := &commonFlags{}
	var previousKeys []string
	cmd := &cobra.Command{
		Use:   "cross-sign",
		Short: "Sign a new root.json version with both the previous and new root keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(f)
			if err != nil {
				return err
			}
			e := newEditor(f, st)
			if err := loadRepo(ctx, st, e); err != nil {
				return err
			}
			e.Open(editor.ModeRoot)

			newSigners, err := resolveSigners(ctx, f)
			if err != nil {
				return err
			}
			prevFlags := &commonFlags{keys: previousKeys}
			prevSigners, err := resolveSigners(ctx, prevFlags)
			if err != nil {
				return err
			}
			if err := e.CrossSignRoot(ctx, prevSigners, newSigners); err != nil {
				return err
			}
			return e.Save(ctx)
		},
	}
	addEditFlags(cmd, f)
	cmd.Flags().StringArrayVar(&previousKeys, "previous-key", nil, "key source uri trusted under the previous root, may be repeated")
	return cmd
}

func newRootGenRSAKeyCmd() *cobra.Command {
	var out string
	var bits int
	cmd := &cobra.Command{
		Use:   "gen-rsa-key",
		Short: "Generate a new RSA key pair and write its PEM private key to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			priv, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return errors.Wrap(err, "generating key")
			}
			der, err := x509.MarshalPKCS8PrivateKey(priv)
			if err != nil {
				return errors.Wrap(err, "marshaling key")
			}
			pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
			if err := os.WriteFile(out, pemBytes, 0600); err != nil {
				return errors.Wrapf(err, "writing %q", out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote key: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the PEM-encoded private key")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size in bits")
	return cmd
}
