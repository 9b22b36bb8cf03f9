package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kolide/tuf/client"
	"github.com/kolide/tuf/data"
	"github.com/kolide/tuf/editor"
	"github.com/kolide/tuf/store"
	"github.com/kolide/tuf/targetfile"
	"github.com/kolide/tuf/transport"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Finalize, download, and clone a repository",
	}
	cmd.AddCommand(
		newRepoCreateCmd(),
		newRepoUpdateCmd(),
		newRepoDownloadCmd(),
		newRepoCloneCmd(),
		newRepoTransferMetadataCmd(),
	)
	return cmd
}

// newRepoCreateCmd and newRepoUpdateCmd both run the same SignAndEmit
// pass; "create" is only distinguished by CLI naming, since the editor's
// loadRepo already no-ops over an empty repository directory.
func newRepoCreateCmd() *cobra.Command {
	return newEmitCmd("create", "Sign and write out every open role, producing a brand-new repository")
}

func newRepoUpdateCmd() *cobra.Command {
	return newEmitCmd("update", "Sign and write out every open role over an existing repository")
}

// newRepoTransferMetadataCmd runs the same SignAndEmit pass as create and
// update, under a separate name for operators who only touch metadata. No
// subcommand of this CLI stages target files (editor.AddTarget and
// AddTargetsFromDir are library calls only), so all three commands emit
// the same metadata-only output.
func newRepoTransferMetadataCmd() *cobra.Command {
	return newEmitCmd("transfer-metadata", "Sign and write out metadata only, without touching target artifacts")
}

func newEmitCmd(use, short string) *cobra.Command {
	f := &commonFlags{}
	var targetsKeys, snapshotKeys, timestampKeys []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
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

			signers := editor.RoleSigners{}
			for name, uris := range map[string][]string{
				"targets": targetsKeys, "snapshot": snapshotKeys, "timestamp": timestampKeys,
			} {
				flags := &commonFlags{keys: uris}
				sources, err := resolveSigners(ctx, flags)
				if err != nil {
					return err
				}
				signers[name] = sources
			}

			manifest, err := e.SignAndEmit(ctx, signers)
			if err != nil {
				return err
			}
			for name := range manifest.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", name)
			}
			return nil
		},
	}
	addRepoFlag(cmd, f)
	cmd.Flags().StringArrayVar(&targetsKeys, "targets-key", nil, "key source uri to sign targets.json with, may be repeated")
	cmd.Flags().StringArrayVar(&snapshotKeys, "snapshot-key", nil, "key source uri to sign snapshot.json with, may be repeated")
	cmd.Flags().StringArrayVar(&timestampKeys, "timestamp-key", nil, "key source uri to sign timestamp.json with, may be repeated")
	return cmd
}

func newRepoDownloadCmd() *cobra.Command {
	var metadataURL, targetsURL, trustedRootPath, targetPathFlag, out string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Run the client update workflow and fetch a single target",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := buildClient(ctx, metadataURL, targetsURL, trustedRootPath)
			if err != nil {
				return err
			}
			state, _, err := c.Update(ctx)
			if err != nil {
				return err
			}
			entry, _, err := c.ResolveTarget(ctx, targetPathFlag)
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()
			if err := fs.MkdirAll(out, 0755); err != nil {
				return errors.Wrapf(err, "creating %q", out)
			}
			st, err := store.New(fs, out)
			if err != nil {
				return err
			}
			url := buildTargetURL(targetsURL, targetPathFlag, state.Root.Signed.ConsistentSnapshot, entry.Hashes)
			if err := targetfile.Fetch(ctx, transport.NewHTTPFetcher(transport.DefaultRetryPolicy(), nil), st, *entry, url, targetPathFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s\n", targetPathFlag)
			return nil
		},
	}
	cmd.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL serving repository metadata")
	cmd.Flags().StringVar(&targetsURL, "targets-url", "", "base URL serving target artifacts")
	cmd.Flags().StringVar(&trustedRootPath, "trusted-root", "", "path to a locally trusted root.json to bootstrap from")
	cmd.Flags().StringVar(&targetPathFlag, "path", "", "target path to resolve and fetch")
	cmd.Flags().StringVar(&out, "out", ".", "directory to write the fetched target into")
	return cmd
}

// buildTargetURL mirrors client/urls.go's unexported targetURL: a target
// artifact's URL is hash-prefixed only when the repository uses consistent
// snapshots (spec.md §4.8).
func buildTargetURL(base, targetPath string, consistentSnapshot bool, hashes data.Hashes) string {
	if consistentSnapshot {
		if digest, ok := hashes["sha256"]; ok {
			dir, file := path.Split(targetPath)
			return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(dir+digest.String()+"."+file, "/")
		}
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(targetPath, "/")
}

func newRepoCloneCmd() *cobra.Command {
	var metadataURL, targetsURL, trustedRootPath, repoDir string
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Run the client update workflow and mirror every metadata file locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := buildClient(ctx, metadataURL, targetsURL, trustedRootPath)
			if err != nil {
				return err
			}
			state, _, err := c.Update(ctx)
			if err != nil {
				return err
			}

			fs := afero.NewOsFs()
			if err := fs.MkdirAll(repoDir, 0755); err != nil {
				return errors.Wrapf(err, "creating %q", repoDir)
			}
			st, err := store.New(fs, repoDir)
			if err != nil {
				return err
			}
			write := func(name string, raw []byte) error {
				w, err := st.Writer(ctx, name)
				if err != nil {
					return err
				}
				defer w.Close()
				if _, err := w.Write(raw); err != nil {
					return err
				}
				return w.Commit()
			}

			rootRaw, err := state.Root.Encode()
			if err != nil {
				return err
			}
			if err := write("root.json", rootRaw); err != nil {
				return err
			}
			tsRaw, err := state.Timestamp.Encode()
			if err != nil {
				return err
			}
			if err := write("timestamp.json", tsRaw); err != nil {
				return err
			}
			ssRaw, err := state.Snapshot.Encode()
			if err != nil {
				return err
			}
			if err := write("snapshot.json", ssRaw); err != nil {
				return err
			}
			tRaw, err := state.Targets.Encode()
			if err != nil {
				return err
			}
			if err := write("targets.json", tRaw); err != nil {
				return err
			}
			for name, d := range state.Delegates {
				raw, err := d.Encode()
				if err != nil {
					return err
				}
				if err := write(name+".json", raw); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cloned repository into %s\n", repoDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL serving repository metadata")
	cmd.Flags().StringVar(&targetsURL, "targets-url", "", "base URL serving target artifacts")
	cmd.Flags().StringVar(&trustedRootPath, "trusted-root", "", "path to a locally trusted root.json to bootstrap from")
	cmd.Flags().StringVar(&repoDir, "repo", ".", "directory to mirror the repository's metadata into")
	return cmd
}

func buildClient(ctx context.Context, metadataURL, targetsURL, trustedRootPath string) (*client.Client, error) {
	if metadataURL == "" || targetsURL == "" || trustedRootPath == "" {
		return nil, errors.New("--metadata-url, --targets-url, and --trusted-root are required")
	}
	rootBytes, err := os.ReadFile(trustedRootPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", trustedRootPath)
	}
	settings := client.Settings{MetadataBaseURL: metadataURL, TargetsBaseURL: targetsURL}
	fetcher := transport.NewHTTPFetcher(transport.DefaultRetryPolicy(), nil)
	return client.New(settings, fetcher, rootBytes)
}
