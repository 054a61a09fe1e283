package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tillsync/internal/agent"
	"tillsync/internal/domain"
)

type syncOutput struct {
	Sales *domain.SyncResult `json:"sales"`
	Data  *domain.SyncResult `json:"data,omitempty"`
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var withData bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send queued sales to the ERP once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), rootOpts, withData, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&withData, "data", false, "also replay the generic sync queue")
	return cmd
}

func runSync(ctx context.Context, opts *RootOptions, withData bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts, w)
	cfg := opts.loadConfig()
	out.VerboseLog("branch %d, upstream %s, db %s", cfg.BranchID, cfg.UpstreamURL, cfg.DBDSN)
	a, err := agent.New(cfg)
	if err != nil {
		return out.Error(err)
	}
	defer a.Close()

	if n, err := a.Sales.Count(cfg.BranchID); err == nil {
		out.VerboseLog("%d sale(s) pending", n)
	}
	var res syncOutput
	sales, err := a.SalesSync.SyncQueue(ctx)
	if err != nil {
		return out.Error(err)
	}
	res.Sales = &sales
	if withData {
		data, err := a.DataSync.Process(ctx)
		if err != nil {
			return out.Error(err)
		}
		res.Data = &data
	}
	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "sales: %d sent, %d failed, %d dead-lettered, %d remaining\n",
			sales.Success, sales.Failed, sales.DeadLettered, sales.Remaining)
		if res.Data != nil {
			fmt.Fprintf(w, "data:  %d sent, %d failed, %d remaining\n",
				res.Data.Success, res.Data.Failed, res.Data.Remaining)
		}
	})
}
