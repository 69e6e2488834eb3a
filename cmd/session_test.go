package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/giveaway-cli/internal/adapters/proximity/simulated"
	"github.com/bnema/giveaway-cli/internal/adapters/render/radar"
	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports/mocks"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sessionModelFixture struct {
	controller *application.SessionController
	transfers  *mocks.MockTransferAPI
	updates    <-chan domain.SessionState
}

func newSessionModelFixture(t *testing.T) sessionModelFixture {
	t.Helper()

	provider := mocks.NewMockGiftCatalog(t)
	provider.EXPECT().List(mock.Anything, 0, mock.Anything).Return(domain.CatalogPage{
		Items: []domain.TransferableItem{
			{ID: "42", Name: "Americano", Brand: "Cafe Nine"},
			{ID: "77", Name: "Cheesecake"},
		},
	}, nil).Maybe()
	transfers := mocks.NewMockTransferAPI(t)

	logger := zaptest.NewLogger(t)
	controller := application.NewSessionController(application.SessionDeps{
		Transport: simulated.NewTransport(simulated.Options{
			Peers: []domain.Peer{
				{ID: "p1", DisplayName: "Mina", TransferToken: "t1"},
				{ID: "p2", DisplayName: "Joon", TransferToken: "t2"},
			},
		}),
		Transfers: transfers,
		Catalog:   application.NewCatalog(provider, 20, logger),
		Logger:    logger,
	}, application.SessionConfig{ScanWindow: 2 * time.Second, PreloadCatalog: true})
	t.Cleanup(func() { controller.Close(context.Background()) })

	updates, unsubscribe := controller.Subscribe(16)
	t.Cleanup(unsubscribe)

	ctx := context.Background()
	require.NoError(t, controller.Initialize(ctx))
	_, err := waitSettled(ctx, controller, 2*time.Second)
	require.NoError(t, err)
	require.Eventually(t, controller.Catalog().Loaded, time.Second, 10*time.Millisecond)

	return sessionModelFixture{controller: controller, transfers: transfers, updates: updates}
}

func (f sessionModelFixture) model(distance float64) sessionModel {
	return newSessionModel(context.Background(), f.controller, f.updates, radar.RenderOptions{}, distance)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m sessionModel, msg tea.Msg) (sessionModel, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	updated, ok := next.(sessionModel)
	require.True(t, ok)
	return updated, cmd
}

func TestSessionModelSelectsAndThrowsItem(t *testing.T) {
	f := newSessionModelFixture(t)
	f.transfers.EXPECT().Send(mock.Anything, domain.ItemID("77"), mock.Anything).Return(nil).Once()

	m, _ := update(t, f.model(150), catalogPollMsg{})
	require.Len(t, m.items, 2)
	assert.Contains(t, m.View(), "> Americano (Cafe Nine)")

	m, _ = update(t, m, keyRune('j'))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	selected := f.controller.Snapshot().SelectedItem
	require.NotNil(t, selected)
	assert.Equal(t, domain.ItemID("77"), selected.ID)
	assert.Equal(t, domain.PhaseAwaitingSelection, m.state.Phase)
	assert.Contains(t, m.View(), "Cheesecake *")

	m, cmd := update(t, m, keyRune('t'))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, domain.PhaseTransferSucceeded, m.state.Phase)
	assert.Contains(t, m.View(), "Sent Cheesecake to ")
	require.Len(t, m.items, 1)
	assert.Equal(t, domain.ItemID("42"), m.items[0].ID)
}

func TestSessionModelShortThrowShowsNotice(t *testing.T) {
	f := newSessionModelFixture(t)

	m, _ := update(t, f.model(10), catalogPollMsg{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m, cmd := update(t, m, keyRune('t'))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, "Throw too short; nothing sent.", m.notice)
	assert.Equal(t, domain.PhaseAwaitingSelection, m.state.Phase)
}

func TestSessionModelThrowWithoutSelectionShowsError(t *testing.T) {
	f := newSessionModelFixture(t)

	m, cmd := update(t, f.model(150), keyRune('t'))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, domain.ErrNoSelection.Error(), m.notice)
}

func TestSessionModelDismissWithoutResult(t *testing.T) {
	f := newSessionModelFixture(t)

	m, cmd := update(t, f.model(150), keyRune('d'))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, "dismiss: "+domain.ErrNothingToDismiss.Error(), m.notice)
}

func TestSessionModelFollowsStateUpdates(t *testing.T) {
	f := newSessionModelFixture(t)
	m := f.model(150)

	state := f.controller.Snapshot()
	state.Phase = domain.PhaseNoPeers
	m, cmd := update(t, m, sessionStateMsg(state))
	require.NotNil(t, cmd)
	assert.Equal(t, domain.PhaseNoPeers, m.state.Phase)

	f.controller.Close(context.Background())
	msg := waitForSessionState(f.updates)()
	for {
		if _, ok := msg.(sessionClosedMsg); ok {
			break
		}
		msg = waitForSessionState(f.updates)()
	}

	m, cmd = update(t, m, msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestSessionModelQuitKey(t *testing.T) {
	f := newSessionModelFixture(t)

	m, cmd := update(t, f.model(150), keyRune('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
}
