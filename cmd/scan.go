package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/spf13/cobra"
)

// settleGrace bounds how long past the scan window a session may take to settle.
const settleGrace = 5 * time.Second

func newScanCmd(app *app, flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Look for people nearby and show them on a radar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(sessionOptions{
				in:        cmd.InOrStdin(),
				prompt:    cmd.ErrOrStderr(),
				assumeYes: flags.assumeYes,
			})
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(cmd.Context()))

			state, err := discover(cmd, app, s.controller, asJSON)
			if err != nil {
				return err
			}

			return writeSessionOutput(cmd, app, state, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

// discover initializes the session and blocks until the first scan settles.
func discover(cmd *cobra.Command, app *app, controller *application.SessionController, quiet bool) (domain.SessionState, error) {
	ctx := cmd.Context()

	if err := controller.Initialize(ctx); err != nil {
		if application.IsUnavailable(err) {
			return controller.Snapshot(), fmt.Errorf("people nearby cannot be discovered: %w", err)
		}
		return controller.Snapshot(), err
	}

	var state domain.SessionState
	wait := func(ctx context.Context) error {
		var err error
		state, err = waitSettled(ctx, controller, app.cfg.Session.ScanWindow+settleGrace)
		return err
	}

	var err error
	if quiet {
		err = wait(ctx)
	} else {
		err = runWithSpinner(ctx, cmd.ErrOrStderr(), "Scanning for people nearby...", wait)
	}
	if err != nil {
		return controller.Snapshot(), fmt.Errorf("wait for scan: %w", err)
	}

	return state, nil
}

// waitSettled returns the first snapshot that no longer waits on I/O.
func waitSettled(ctx context.Context, controller *application.SessionController, timeout time.Duration) (domain.SessionState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	updates, unsubscribe := controller.Subscribe(8)
	defer unsubscribe()

	for {
		state := controller.Snapshot()
		if state.Phase.Settled() && !state.Scanning && !state.Transferring {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return controller.Snapshot(), domain.ErrSessionClosed
			}
		}
	}
}

type sessionView struct {
	Phase        string     `json:"phase"`
	ScanTimedOut bool       `json:"scan_timed_out"`
	Peers        []peerView `json:"peers"`
	SelectedItem string     `json:"selected_item,omitempty"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type peerView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Avatar  int     `json:"avatar"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Scale   float64 `json:"scale"`
	Opacity float64 `json:"opacity"`
	Tier    string  `json:"tier"`
}

func newSessionView(state domain.SessionState) sessionView {
	view := sessionView{
		Phase:        string(state.Phase),
		ScanTimedOut: state.ScanTimedOut,
		Peers:        make([]peerView, 0, len(state.Peers)),
	}

	for _, peer := range state.Peers {
		pv := peerView{ID: string(peer.ID), Name: sanitizeForTerminal(peer.Label()), Avatar: peer.Avatar}
		if position, ok := state.PositionFor(peer.ID); ok {
			pv.X, pv.Y = position.X, position.Y
			pv.Scale, pv.Opacity = position.Scale, position.Opacity
			pv.Tier = position.Tier.String()
		}
		view.Peers = append(view.Peers, pv)
	}
	if state.SelectedItem != nil {
		view.SelectedItem = string(state.SelectedItem.ID)
	}
	if state.Ack != nil {
		view.Message = state.Ack.Message
	}
	if state.Err != nil {
		view.Error = state.Err.Error()
	}

	return view
}

func writeSessionOutput(cmd *cobra.Command, app *app, state domain.SessionState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newSessionView(state))
	}

	rendered, err := app.radarRenderer(state, app.renderOptions())
	if err != nil {
		return fmt.Errorf("render radar: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
