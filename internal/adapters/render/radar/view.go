package radar

import (
	"fmt"
	"math"
	"strings"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/layout"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultColumns = 39
	defaultRows    = 17
	selfMarker     = "@"
)

var avatarGlyphs = [domain.AvatarCount]string{"♣", "♦", "♥", "♠", "★"}

type RenderOptions struct {
	// Screen is the coordinate space the positions were laid out in.
	Screen  layout.Bounds
	Columns int
	Rows    int
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Columns <= 0 {
		o.Columns = defaultColumns
	}
	if o.Rows <= 0 {
		o.Rows = defaultRows
	}
	if o.Screen.Width <= 0 || o.Screen.Height <= 0 {
		o.Screen = layout.Bounds{Width: 390, Height: 844}
	}
	return o
}

// View renders a session snapshot as a radar with a peer legend.
func View(state domain.SessionState, opts RenderOptions) string {
	opts = opts.withDefaults()
	s := newStyles()

	lines := []string{
		s.title.Render("Give Away"),
		s.header.Render(fmt.Sprintf("phase: %s  peers: %d", s.phase.Render(PhaseLabel(state.Phase)), len(state.Peers))),
		s.frame.Render(renderGrid(state, opts, s)),
	}

	lines = append(lines, s.section.Render(renderPeers(state, s)))
	lines = append(lines, renderSelection(state, s))

	if state.Ack != nil {
		lines = append(lines, s.section.Render(renderAck(*state.Ack, s)))
	}
	if state.Err != nil {
		lines = append(lines, s.warning.Render("error: "+state.Err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// PhaseLabel is the human readable name of a phase.
func PhaseLabel(phase domain.Phase) string {
	switch phase {
	case domain.PhaseIdle:
		return "idle"
	case domain.PhaseInitializing:
		return "starting"
	case domain.PhaseScanning:
		return "scanning for nearby people"
	case domain.PhasePeersFound:
		return "people nearby"
	case domain.PhaseNoPeers:
		return "nobody nearby"
	case domain.PhaseAwaitingSelection:
		return "ready to send"
	case domain.PhaseTransferring:
		return "sending"
	case domain.PhaseTransferSucceeded:
		return "sent"
	case domain.PhaseTransferFailed:
		return "send failed"
	case domain.PhaseUnavailable:
		return "unavailable"
	default:
		return string(phase)
	}
}

func renderGrid(state domain.SessionState, opts RenderOptions, s styles) string {
	cells := make([][]string, opts.Rows)
	for r := range cells {
		cells[r] = make([]string, opts.Columns)
		for c := range cells[r] {
			cells[r][c] = " "
		}
	}

	centerCol, centerRow := opts.Columns/2, opts.Rows/2
	for _, radius := range []float64{0.33, 0.66, 0.98} {
		drawRing(cells, centerCol, centerRow, radius, s)
	}
	cells[centerRow][centerCol] = s.self.Render(selfMarker)

	for i, peer := range state.Peers {
		position, ok := state.PositionFor(peer.ID)
		if !ok {
			continue
		}
		col := scaleToCell(position.X, opts.Screen.Width, opts.Columns)
		row := scaleToCell(position.Y, opts.Screen.Height, opts.Rows)
		if col == centerCol && row == centerRow {
			col++
		}

		style := s.peer.Foreground(opacityColor(position.Opacity))
		if peer.ID == state.LastTransferTargetID {
			style = s.target
		}
		cells[row][col] = style.Render(peerMarker(i))
	}

	rows := make([]string, 0, len(cells))
	for _, row := range cells {
		rows = append(rows, strings.Join(row, ""))
	}

	return strings.Join(rows, "\n")
}

func drawRing(cells [][]string, centerCol, centerRow int, fraction float64, s styles) {
	rows, cols := len(cells), len(cells[0])
	radiusCols := float64(cols-1) / 2 * fraction
	radiusRows := float64(rows-1) / 2 * fraction

	steps := int(math.Max(radiusCols, radiusRows) * 4)
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		col := centerCol + int(math.Round(radiusCols*math.Cos(angle)))
		row := centerRow + int(math.Round(radiusRows*math.Sin(angle)))
		if row < 0 || row >= rows || col < 0 || col >= cols {
			continue
		}
		cells[row][col] = s.ring.Render("·")
	}
}

func scaleToCell(v, extent float64, cells int) int {
	if extent <= 0 {
		return cells / 2
	}
	cell := int(v / extent * float64(cells))
	if cell < 0 {
		return 0
	}
	if cell >= cells {
		return cells - 1
	}
	return cell
}

func peerMarker(i int) string {
	return fmt.Sprintf("%d", i+1)
}

func renderPeers(state domain.SessionState, s styles) string {
	if len(state.Peers) == 0 {
		if state.Phase == domain.PhaseScanning || state.Phase == domain.PhaseInitializing {
			return s.empty.Render("Looking for people nearby...")
		}
		return s.empty.Render("Nobody nearby.")
	}

	lines := make([]string, 0, len(state.Peers))
	for i, peer := range state.Peers {
		tier := "?"
		if position, ok := state.PositionFor(peer.ID); ok {
			tier = position.Tier.String()
		}
		line := fmt.Sprintf("%s %s %s (%s)", peerMarker(i), avatarGlyph(peer.Avatar), peer.Label(), tier)
		if peer.ID == state.LastTransferTargetID {
			lines = append(lines, s.target.Render(line+" <- gift received"))
			continue
		}
		lines = append(lines, s.detail.Render(line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSelection(state domain.SessionState, s styles) string {
	if state.SelectedItem == nil {
		return s.empty.Render("No gift selected.")
	}

	return "gift: " + s.selected.Render(ItemLabel(*state.SelectedItem))
}

func renderAck(ack domain.TransferAck, s styles) string {
	if ack.Succeeded {
		return s.success.Render(ack.Message)
	}
	return s.warning.Render(ack.Message)
}

// ItemLabel formats an item as "Name (Brand), expires YYYY-MM-DD".
func ItemLabel(item domain.TransferableItem) string {
	label := strings.TrimSpace(item.Name)
	if label == "" {
		label = string(item.ID)
	}
	if item.Brand != "" {
		label += " (" + item.Brand + ")"
	}
	if !item.ExpiresAt.IsZero() {
		label += ", expires " + item.ExpiresAt.Format("2006-01-02")
	}
	return label
}

func avatarGlyph(avatar int) string {
	if avatar < 0 || avatar >= len(avatarGlyphs) {
		return avatarGlyphs[0]
	}
	return avatarGlyphs[avatar]
}

// opacityColor maps a peer's opacity onto the 256-color greyscale ramp.
func opacityColor(opacity float64) lipgloss.Color {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}

	baseColor := 240.0
	targetColor := 255.0
	return lipgloss.Color(fmt.Sprintf("%d", int(baseColor+(targetColor-baseColor)*opacity)))
}
