// Command tuf is the repository editor and client companion tool from
// spec.md §6, generalizing kolide-updater/example/cmd/main.go's one-shot
// updater invocation into a full cobra command tree covering repository
// creation, client-side download/clone, and delegation maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kolide/tuf/tuferr"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:           "tuf",
		Short:         "Create, sign, and fetch TUF repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRootCmd(), newRepoCmd(), newDelegationCmd())

	err := root.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintf(os.Stderr, "tuf: %s\n", err)
	return exitCode(err)
}

// exitCode maps an error to spec.md §6's exit code taxonomy: 0 success
// (handled in run before this is reached), 1 verification failure, 2
// usage error, 3 I/O/transport failure. Anything that isn't a *tuferr.Error
// maps to 2: a missing required flag checked by hand in a RunE, but also
// the plain errors that store (local file-system I/O) and editor
// (precondition checks) return, since those packages do not use tuferr.
func exitCode(err error) int {
	terr, ok := asTUFError(err)
	if !ok {
		return 2
	}
	switch terr.Kind {
	case tuferr.KindSignature, tuferr.KindThreshold, tuferr.KindExpired, tuferr.KindRollback,
		tuferr.KindIntegrity, tuferr.KindDelegationCycle, tuferr.KindDelegationUnauthorized:
		return 1
	case tuferr.KindParse, tuferr.KindCanonicalization, tuferr.KindPathTraversal:
		return 2
	case tuferr.KindTransport, tuferr.KindOversized, tuferr.KindNotFound, tuferr.KindSigner:
		return 3
	default:
		return 2
	}
}

type causer interface{ Cause() error }

// asTUFError walks err's cause chain one level at a time via
// github.com/pkg/errors's Causer interface (errors.Wrap's own Unwrap
// didn't arrive until v0.9; this module pins v0.8.0, per the teacher's
// go.mod), stopping at the first *tuferr.Error found -- not errors.Cause,
// since tuferr.Error itself implements Causer and would be unwrapped past.
func asTUFError(err error) (*tuferr.Error, bool) {
	for err != nil {
		if terr, ok := err.(*tuferr.Error); ok {
			return terr, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}
