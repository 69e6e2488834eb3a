package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/giveaway-cli/internal/adapters/proximity/beacon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAdvertiseCmd(app *app, flags *rootFlags) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "advertise",
		Short: "Announce this device so people nearby can send you gifticons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			gate := newPromptGate(cmd.InOrStdin(), cmd.ErrOrStderr(), app.permissionGranted(flags.assumeYes))
			granted, err := gate.Request(ctx)
			if err != nil {
				return err
			}
			if !granted {
				return errPermissionDeclined
			}

			transport := app.newTransport()
			if err := transport.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize proximity transport: %w", err)
			}
			defer closeTransport(transport, app.logger)

			if err := transport.StartAdvertising(ctx); err != nil {
				return fmt.Errorf("start advertising: %w", err)
			}
			defer func() {
				if err := transport.StopAdvertising(context.WithoutCancel(ctx)); err != nil {
					app.logger.Warn("stop advertising", zap.Error(err))
				}
			}()

			name := app.cfg.Proximity.DeviceName
			if b, ok := transport.(*beacon.Transport); ok {
				self := b.Self()
				name = fmt.Sprintf("%s (%s)", self.Label(), self.ID)
			}
			if name == "" {
				name = "this device"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Advertising %s. Press Ctrl+C to stop.\n", sanitizeForTerminal(name))

			<-ctx.Done()
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Stopped advertising.")
			return err
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	return cmd
}
