package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
	"github.com/good-yellow-bee/blazewatch/internal/reconcile"
)

var (
	watchStart          bool
	watchFiles          []string
	watchStatusInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow alerts in real-time",
	Long: `Follow the dashboard's alerts as they are classified.

New alerts arrive over the live channel while the server is tailing. The
server state is polled every few seconds, so the local history stays in
sync even when the channel drops, and tailing stopped elsewhere is noticed.
Critical and high alerts ring the terminal bell.

Examples:
  # Follow alerts, resuming tailing if the server is already tailing
  blazewatch watch

  # Start tailing two files, then follow
  blazewatch watch --start --file /var/log/nginx/error.log --file /var/log/app.log

  # Expose Prometheus metrics and /healthz while watching
  blazewatch watch --config blazewatch.yaml -v`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchStart, "start", false, "ask the server to start tailing before following")
	watchCmd.Flags().StringSliceVarP(&watchFiles, "file", "f", nil, "file to tail with --start (default: all enabled files)")
	watchCmd.Flags().DurationVar(&watchStatusInterval, "status-interval", 30*time.Second, "how often to log session status in verbose mode")
}

func runWatch(cmd *cobra.Command, args []string) error {
	api, cfg, err := newClient()
	if err != nil {
		return err
	}

	dispatcher := notifier.NewDispatcher()
	dispatcher.SetVerbose(IsVerbose())
	if *cfg.Notify.Bell && term.IsTerminal(int(os.Stdout.Fd())) {
		dispatcher.Register(notifier.NewBell(os.Stdout, cfg.Notify.BellInterval))
	}
	if IsVerbose() {
		dispatcher.Register(&notifier.LogNotifier{Locale: cfg.Notify.Locale})
	}
	defer dispatcher.Close()

	rc := cfg.ControllerConfig(api.StreamURL())
	rc.Notifier = dispatcher
	rc.Verbose = IsVerbose()
	ctrl := reconcile.New(api, rc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	alerts, unsubscribe := ctrl.Subscribe(256)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := ctrl.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		format := GetOutput()
		for rec := range alerts {
			writeAlert(os.Stdout, format, rec, cfg.Notify.Locale)
		}
		return nil
	})

	if cfg.Metrics.Address != "" {
		srv := metrics.NewServer(cfg.Metrics.Address, ctrl.Health)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if watchStart {
		g.Go(func() error {
			res, err := ctrl.RequestStart(gctx, watchFiles)
			if err != nil {
				return err
			}
			writeTailResult(os.Stderr, "table", res)
			return nil
		})
	}

	if IsVerbose() && watchStatusInterval > 0 {
		g.Go(func() error {
			logStatus(gctx, ctrl, watchStatusInterval)
			return nil
		})
	}

	fmt.Fprintf(os.Stderr, "Watching %s. Press Ctrl+C to stop.\n", cfg.Server.BaseURL)

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Stopped.")
	return nil
}

func logStatus(ctx context.Context, ctrl *reconcile.Controller, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := ctrl.Status(ctx)
			if err != nil {
				return
			}
			history, err := ctrl.Snapshot(ctx)
			if err != nil {
				return
			}
			log.Printf("[watch] tailing=%t desired=%t channel=%s files=%d history=%d",
				status.Active, status.Desired, status.ChannelState, status.WatchedFileCount, len(history))
		}
	}
}
