package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cyclegen/internal/funcs"
)

// FunctionInfo is the JSON form of one library entry.
type FunctionInfo struct {
	Name       string `json:"name"`
	Signature  string `json:"signature"`
	ThreadSafe bool   `json:"threadSafe"`
	Doc        string `json:"doc,omitempty"`
}

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "functions [name...]",
		Short: "List the functions available to flow expressions",
		Long: `List every entry of the built-in function library. A function name may
have several entries that differ in parameter, input or output types; the
resolver picks one per stage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctions(rootOpts, args, cmd)
		},
	}
}

func runFunctions(opts *RootOptions, names []string, cmd *cobra.Command) error {
	lib := funcs.NewStandard(nil)

	var entries []*funcs.Entry
	if len(names) == 0 {
		entries = lib.Entries()
	}
	for _, n := range names {
		if !lib.Has(n) {
			return NewExitError(ExitError, fmt.Sprintf("unknown function %q", n))
		}
		entries = append(entries, lib.Lookup(n)...)
	}

	infos := make([]FunctionInfo, len(entries))
	for i, e := range entries {
		infos[i] = FunctionInfo{Name: e.Name, Signature: e.Signature(), ThreadSafe: e.ThreadSafe, Doc: e.Doc}
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, info := range infos {
		marker := ""
		if !info.ThreadSafe {
			marker = " (not thread-safe)"
		}
		fmt.Fprintf(tw, "%s\t%s%s\n", info.Signature, info.Doc, marker)
	}
	return tw.Flush()
}
