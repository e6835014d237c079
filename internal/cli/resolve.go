package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"cyclegen/internal/activity"
	"cyclegen/internal/funcs"
	"cyclegen/internal/resolver"
	"cyclegen/internal/template"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Type   string
	Cycles string
	Trace  bool
}

// ResolveResult is the JSON form of a resolution.
type ResolveResult struct {
	Expr       string   `json:"expr"`
	Signature  string   `json:"signature"`
	In         string   `json:"in"`
	Out        string   `json:"out"`
	ThreadSafe bool     `json:"threadSafe"`
	Samples    []Sample `json:"samples"`
	Trace      []string `json:"trace,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Sample is the value an expression produces for one cycle.
type Sample struct {
	Cycle int64  `json:"cycle"`
	Value string `json:"value"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <expr>",
		Short: "Resolve a flow expression and show sample values",
		Long: `Resolve a flow expression against the built-in function library, print
the selected function of every stage and apply it to a few cycles.

Example:
  cyclegen resolve "Hash(); Mod(1000); ToString()"
  cyclegen resolve --type int --cycles 10..15 --trace "HashRange(100)"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "required result type, e.g. long, int, string")
	cmd.Flags().StringVar(&opts.Cycles, "cycles", "0..5", "cycles to sample")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print every resolution step")

	return cmd
}

func runResolve(opts *ResolveOptions, expr string, cmd *cobra.Command) error {
	var want reflect.Type
	if opts.Type != "" {
		t, err := funcs.TypeByName(opts.Type)
		if err != nil {
			return WrapExitError(ExitError, "invalid --type", err)
		}
		want = t
	}
	cycles, err := activity.ParseRange(opts.Cycles)
	if err != nil {
		return WrapExitError(ExitError, "invalid --cycles", err)
	}
	if cycles.Unbounded {
		return NewExitError(ExitError, "invalid --cycles: a bounded range is required")
	}

	r := resolver.New(funcs.NewStandard(nil), resolver.WithLogger(opts.logger(cmd.ErrOrStderr())))
	res, resolveErr := r.Resolve(expr, want)

	out := ResolveResult{Expr: expr}
	var trace *resolver.Trace
	if resolveErr != nil {
		out.Error = resolveErr.Error()
		var re *resolver.ResolutionError
		if errors.As(resolveErr, &re) {
			trace = re.Trace
		}
	} else {
		out.Expr = res.Expr
		out.Signature = res.Signature()
		out.In = funcs.TypeName(res.In)
		out.Out = funcs.TypeName(res.Out)
		out.ThreadSafe = res.ThreadSafe
		for c := cycles.First; c < cycles.Last; c++ {
			out.Samples = append(out.Samples, Sample{Cycle: c, Value: template.Format(res.Apply(c))})
		}
		trace = res.Trace
	}
	if (opts.Trace || resolveErr != nil) && trace != nil {
		for _, s := range trace.Steps {
			out.Trace = append(out.Trace, s.String())
		}
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		if resolveErr == nil {
			fmt.Fprintf(w, "expr:       %s\n", out.Expr)
			fmt.Fprintf(w, "signature:  %s\n", out.Signature)
			fmt.Fprintf(w, "type:       %s -> %s\n", out.In, out.Out)
			fmt.Fprintf(w, "threadsafe: %t\n", out.ThreadSafe)
			for _, s := range out.Samples {
				fmt.Fprintf(w, "  %d: %s\n", s.Cycle, s.Value)
			}
		}
		if len(out.Trace) > 0 {
			fmt.Fprintln(w, "trace:")
			for _, line := range out.Trace {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}

	if resolveErr != nil {
		return WrapExitError(ExitError, "resolution failed", resolveErr)
	}
	return nil
}
