package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/giveaway-cli/internal/adapters/render/radar"
	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const catalogPollInterval = 100 * time.Millisecond

func newSessionCmd(app *app, flags *rootFlags) *cobra.Command {
	var distance float64

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open the interactive give-away radar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(sessionOptions{
				in:        cmd.InOrStdin(),
				prompt:    cmd.ErrOrStderr(),
				assumeYes: flags.assumeYes,
				withAPI:   app.api != nil,
				preload:   true,
			})
			if err != nil {
				return err
			}
			defer s.close(context.WithoutCancel(cmd.Context()))

			updates, unsubscribe := s.controller.Subscribe(16)
			defer unsubscribe()

			// The permission prompt needs the terminal before the program takes it.
			if err := s.controller.Initialize(cmd.Context()); err != nil && application.IsUnavailable(err) {
				return fmt.Errorf("people nearby cannot be discovered: %w", err)
			}

			model := newSessionModel(cmd.Context(), s.controller, updates, app.renderOptions(), distance)
			p := tea.NewProgram(model,
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithAltScreen(),
			)

			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().Float64Var(&distance, "distance", defaultThrowDistance, "Throw distance used by the t key")

	return cmd
}

type sessionStateMsg domain.SessionState

type sessionClosedMsg struct{}

type catalogPollMsg struct{}

type catalogMsg struct {
	items   []domain.TransferableItem
	hasMore bool
}

type transferDoneMsg struct {
	outcome domain.TransferOutcome
	err     error
}

type sessionActionMsg struct {
	action string
	err    error
}

type sessionModel struct {
	ctx        context.Context
	controller *application.SessionController
	catalog    *application.Catalog
	updates    <-chan domain.SessionState
	opts       radar.RenderOptions
	distance   float64
	spinner    spinner.Model

	state    domain.SessionState
	items    []domain.TransferableItem
	hasMore  bool
	synced   bool
	cursor   int
	notice   string
	quitting bool
}

func newSessionModel(ctx context.Context, controller *application.SessionController, updates <-chan domain.SessionState, opts radar.RenderOptions, distance float64) sessionModel {
	return sessionModel{
		ctx:        ctx,
		controller: controller,
		catalog:    controller.Catalog(),
		updates:    updates,
		opts:       opts,
		distance:   distance,
		spinner:    newSpinner(),
		state:      controller.Snapshot(),
	}
}

func (m sessionModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSessionState(m.updates), pollCatalog())
}

func waitForSessionState(updates <-chan domain.SessionState) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionStateMsg(state)
	}
}

func pollCatalog() tea.Cmd {
	return tea.Tick(catalogPollInterval, func(time.Time) tea.Msg {
		return catalogPollMsg{}
	})
}

func (m sessionModel) loadMore() tea.Cmd {
	ctx, catalog := m.ctx, m.catalog
	return func() tea.Msg {
		items := catalog.LoadMore(ctx)
		return catalogMsg{items: items, hasMore: catalog.HasNextPage()}
	}
}

func (m sessionModel) throw() tea.Cmd {
	ctx, controller, distance := m.ctx, m.controller, m.distance
	return func() tea.Msg {
		outcome, err := controller.DragReleased(ctx, domain.DragRelease{Distance: distance})
		return transferDoneMsg{outcome: outcome, err: err}
	}
}

func (m sessionModel) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return sessionActionMsg{action: action, err: fn(ctx)}
	}
}

func (m sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case sessionStateMsg:
		m.state = domain.SessionState(msg)
		return m, waitForSessionState(m.updates)
	case sessionClosedMsg:
		m.quitting = true
		return m, tea.Quit
	case catalogPollMsg:
		if m.synced || m.catalog == nil {
			return m, nil
		}
		if !m.catalog.Loaded() {
			return m, pollCatalog()
		}
		m.setItems(m.catalog.Items(), m.catalog.HasNextPage())
		return m, nil
	case catalogMsg:
		m.setItems(msg.items, msg.hasMore)
		return m, nil
	case transferDoneMsg:
		m.state = m.controller.Snapshot()
		switch {
		case msg.outcome.Cancelled:
			m.notice = "Throw too short; nothing sent."
		case msg.err != nil && m.state.Ack == nil:
			m.notice = msg.err.Error()
		default:
			m.notice = ""
		}
		if m.catalog != nil {
			m.setItems(m.catalog.Items(), m.catalog.HasNextPage())
		}
		return m, nil
	case sessionActionMsg:
		m.notice = ""
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m sessionModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		} else if m.hasMore {
			return m, m.loadMore()
		}
	case "m":
		return m, m.loadMore()
	case "enter":
		if len(m.items) == 0 {
			m.notice = "No gifticon to select."
			return m, nil
		}
		item := m.items[m.cursor]
		m.notice = ""
		if err := m.controller.SelectItem(&item); err != nil {
			m.notice = err.Error()
		}
		m.state = m.controller.Snapshot()
	case "esc":
		if err := m.controller.SelectItem(nil); err != nil {
			m.notice = err.Error()
		}
		m.state = m.controller.Snapshot()
	case "t", " ":
		return m, m.throw()
	case "d":
		return m, m.run("dismiss", m.controller.Dismiss)
	case "r":
		return m, m.run("refresh", m.controller.Refresh)
	}

	return m, nil
}

func (m *sessionModel) setItems(items []domain.TransferableItem, hasMore bool) {
	m.items = items
	m.hasMore = hasMore
	m.synced = true
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

var (
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m sessionModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.state.Scanning || m.state.Phase == domain.PhaseInitializing {
		fmt.Fprintf(&b, "%s Scanning for people nearby...\n", m.spinner.View())
	}
	b.WriteString(radar.View(m.state, m.opts))
	b.WriteString("\n\n")
	b.WriteString(m.itemsView())
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(sanitizeForTerminal(m.notice)))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ choose · enter select · esc clear · t throw · d dismiss · r rescan · m more · q quit"))

	return b.String()
}

func (m sessionModel) itemsView() string {
	if !m.synced {
		return helpStyle.Render("Gifticons load once someone is nearby (m to load now).")
	}
	if len(m.items) == 0 {
		return "No gifticons to give away."
	}

	lines := make([]string, 0, len(m.items)+1)
	for i, item := range m.items {
		label := sanitizeForTerminal(radar.ItemLabel(item))
		if m.state.SelectedItem != nil && m.state.SelectedItem.ID == item.ID {
			label += " *"
		}
		if i == m.cursor {
			lines = append(lines, cursorStyle.Render("> "+label))
			continue
		}
		lines = append(lines, "  "+label)
	}
	if m.hasMore {
		lines = append(lines, helpStyle.Render("  ... more"))
	}

	return strings.Join(lines, "\n")
}
