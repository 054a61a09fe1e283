package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"tillsync/internal/agent"
	"tillsync/internal/domain"
)

func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List queued and dead-lettered sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(rootOpts, cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "requeue <id>",
		Short: "Return a dead-lettered sale to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequeue(rootOpts, args[0], cmd.OutOrStdout())
		},
	})
	return cmd
}

func runQueueList(opts *RootOptions, w io.Writer) error {
	out := newFormatter(opts, w)
	a, err := agent.New(opts.loadConfig())
	if err != nil {
		return out.Error(err)
	}
	defer a.Close()

	pending, err := a.Sales.Pending(a.Cfg.BranchID)
	if err != nil {
		return out.Error(err)
	}
	dead, err := a.Sales.Dead(a.Cfg.BranchID)
	if err != nil {
		return out.Error(err)
	}
	data := map[string][]domain.QueuedSale{"pending": pending, "dead": dead}
	return out.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%d pending, %d dead\n", len(pending), len(dead))
		for _, s := range append(pending, dead...) {
			fmt.Fprintf(w, "%6d  %-7s  %s  items=%d attempts=%d  %s\n",
				s.ID, s.Status, s.QueuedAt.Format("2006-01-02 15:04:05"), len(s.Payload.Items), s.Attempts, s.LastError)
		}
	})
}

func runRequeue(opts *RootOptions, rawID string, w io.Writer) error {
	out := newFormatter(opts, w)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return out.Error(fmt.Errorf("invalid id %q", rawID))
	}
	a, err := agent.New(opts.loadConfig())
	if err != nil {
		return out.Error(err)
	}
	defer a.Close()
	if err := a.SalesSync.Requeue(id); err != nil {
		return out.Error(fmt.Errorf("requeue %d: %w", id, err))
	}
	return out.Success(map[string]int64{"requeued": id}, func(w io.Writer) {
		fmt.Fprintf(w, "sale %d requeued\n", id)
	})
}
