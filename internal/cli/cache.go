package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tillsync/internal/agent"
)

func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the worker caches",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cache partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cache partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	})
	return cmd
}

func runCacheList(ctx context.Context, opts *RootOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts, w)
	a, err := agent.New(opts.loadConfig())
	if err != nil {
		return out.Error(err)
	}
	defer a.Close()
	names, err := a.Storage.Names(ctx)
	if err != nil {
		return out.Error(err)
	}
	return out.Success(names, func(w io.Writer) {
		for _, n := range names {
			fmt.Fprintln(w, n)
		}
	})
}

func runCacheClear(ctx context.Context, opts *RootOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts, w)
	a, err := agent.New(opts.loadConfig())
	if err != nil {
		return out.Error(err)
	}
	defer a.Close()
	if err := a.Worker.ClearAll(ctx); err != nil {
		return out.Error(err)
	}
	return out.Success(map[string]bool{"cleared": true}, func(w io.Writer) {
		fmt.Fprintln(w, "caches cleared")
	})
}
