package cli

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tillsync/internal/agent"
	"tillsync/internal/http/handlers"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent in front of the ERP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, port string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.loadConfig()
	if port != "" {
		cfg.Port = port
	}

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	a, err := agent.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	app := handlers.NewApp(a)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	log.Printf("[serve] listening on :%s, upstream %s", cfg.Port, cfg.UpstreamURL)
	if err := app.Listen(":" + cfg.Port); err != nil {
		stop()
		<-done
		return err
	}
	stop()
	return <-done
}
