package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-dose-timer/internal/services"
	"github.com/tbourn/go-dose-timer/internal/ui"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live timer since the last dose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = a.cfg.Dose.TickInterval
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			live := !a.jsonOutput && !once && ui.IsTerminal(os.Stdout)
			return watch(ctx, svc, w, interval, once, a.jsonOutput, live)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh period (default $DOSE_TICK_INTERVAL)")
	cmd.Flags().BoolVar(&once, "once", false, "print the current status and exit")
	return cmd
}

// watch prints the status every interval until ctx is done. Each tick
// re-reads the persisted log so doses added by another process show up.
// live rewrites one terminal line instead of appending lines.
func watch(ctx context.Context, svc *services.DoseService, w io.Writer, interval time.Duration, once, asJSON, live bool) error {
	show := func() error {
		st := svc.Status(ctx)
		switch {
		case asJSON:
			return printJSON(w, st)
		case live:
			_, err := fmt.Fprintf(w, "\r\x1b[2K%s", statusLine(st))
			return err
		default:
			_, err := fmt.Fprintln(w, statusLine(st))
			return err
		}
	}

	if err := show(); err != nil || once {
		return err
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if live {
				fmt.Fprintln(w)
			}
			return nil
		case <-t.C:
			// Reload logs its own failures.
			_ = svc.Reload(ctx)
			if err := show(); err != nil {
				return err
			}
		}
	}
}
