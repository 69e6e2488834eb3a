package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	"github.com/bnema/giveaway-cli/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu sync.Mutex

	initErr      error
	scanErr      error
	advertiseErr error
	stopScanErr  error
	stopAdvPanic bool

	initCalls      int
	scanCalls      int
	stopScanCalls  int
	advertiseCalls int
	stopAdvCalls   int

	onFound    func(domain.Peer)
	onComplete func([]domain.Peer)
}

func (f *fakeTransport) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

func (f *fakeTransport) StartAdvertising(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertiseCalls++
	return f.advertiseErr
}

func (f *fakeTransport) StopAdvertising(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAdvCalls++
	if f.stopAdvPanic && f.stopAdvCalls > 1 {
		panic("radio gone")
	}
	return nil
}

func (f *fakeTransport) StartScan(_ context.Context, onFound func(domain.Peer), onComplete func([]domain.Peer)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	if f.scanErr != nil {
		return f.scanErr
	}
	f.onFound = onFound
	f.onComplete = onComplete
	return nil
}

func (f *fakeTransport) StopScan(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopScanCalls++
	return f.stopScanErr
}

func (f *fakeTransport) callbacks() (func(domain.Peer), func([]domain.Peer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onFound, f.onComplete
}

func (f *fakeTransport) complete(peers ...domain.Peer) {
	_, onComplete := f.callbacks()
	onComplete(peers)
}

type fakeTimer struct {
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

// fireAll runs every timer that has not been stopped.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, timer := range timers {
		if !timer.stopped.Swap(true) {
			timer.fn()
		}
	}
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.TransferRecord
	err     error
}

func (h *memoryHistory) Append(_ context.Context, record domain.TransferRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, record)
	return nil
}

func (h *memoryHistory) List(context.Context) ([]domain.TransferRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.TransferRecord(nil), h.records...), nil
}

type denyingGate struct{}

func (denyingGate) Request(context.Context) (bool, error) { return false, nil }

type controllerFixture struct {
	controller *SessionController
	transport  *fakeTransport
	clock      *fakeClock
	transfers  *mocks.MockTransferAPI
	catalog    *Catalog
	history    *memoryHistory
}

func newControllerFixture(t *testing.T, items ...domain.TransferableItem) *controllerFixture {
	t.Helper()

	provider := mocks.NewMockGiftCatalog(t)
	provider.EXPECT().List(mock.Anything, 0, DefaultCatalogPageSize).
		Return(domain.CatalogPage{Items: items}, nil).Maybe()

	logger := zaptest.NewLogger(t)
	f := &controllerFixture{
		transport: &fakeTransport{},
		clock:     newFakeClock(),
		transfers: mocks.NewMockTransferAPI(t),
		catalog:   NewCatalog(provider, 0, logger),
		history:   &memoryHistory{},
	}
	f.catalog.Load(context.Background())

	f.controller = NewSessionController(SessionDeps{
		Transport: f.transport,
		Transfers: f.transfers,
		Catalog:   f.catalog,
		History:   f.history,
		Clock:     f.clock,
		Logger:    logger,
		Rand:      rand.New(rand.NewSource(11)),
	}, DefaultSessionConfig())

	return f
}

func testPeers(n int) []domain.Peer {
	peers := make([]domain.Peer, 0, n)
	for i := 0; i < n; i++ {
		peers = append(peers, domain.Peer{
			ID:            domain.PeerID(fmt.Sprintf("peer-%d", i)),
			DisplayName:   fmt.Sprintf("Peer %d", i),
			TransferToken: fmt.Sprintf("token-%d", i),
		})
	}
	return peers
}

var coffee = domain.TransferableItem{ID: "item-1", Name: "Iced Americano", Brand: "Starbucks"}

// readyWithPeers drives the fixture to PeersFound with n peers and selects coffee.
func (f *controllerFixture) readyWithPeers(t *testing.T, n int) {
	t.Helper()

	require.NoError(t, f.controller.Initialize(context.Background()))
	f.transport.complete(testPeers(n)...)
	require.NoError(t, f.controller.SelectItem(&coffee))
	require.Equal(t, domain.PhaseAwaitingSelection, f.controller.Snapshot().Phase)
}

func TestSessionInitializeStartsAdvertisingThenScanning(t *testing.T) {
	f := newControllerFixture(t)

	require.NoError(t, f.controller.Initialize(context.Background()))

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseScanning, state.Phase)
	assert.True(t, state.Scanning)
	assert.Equal(t, 1, f.transport.initCalls)
	assert.Equal(t, 1, f.transport.advertiseCalls)
	assert.Equal(t, 1, f.transport.scanCalls)
}

func TestSessionInitializeTransportFailureIsUnavailable(t *testing.T) {
	f := newControllerFixture(t)
	f.transport.initErr = errors.New("bluetooth off")

	err := f.controller.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseUnavailable, state.Phase)
	assert.ErrorIs(t, state.Err, domain.ErrTransportUnavailable)
	assert.Zero(t, f.transport.scanCalls)

	require.NoError(t, f.controller.StartScan(context.Background()))
	assert.Zero(t, f.transport.scanCalls)
}

func TestSessionInitializePermissionDenied(t *testing.T) {
	f := newControllerFixture(t)
	f.controller.permissions = denyingGate{}

	err := f.controller.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Zero(t, f.transport.advertiseCalls)
}

func TestSessionAdvertisingFailureIsNotFatal(t *testing.T) {
	f := newControllerFixture(t)
	f.transport.advertiseErr = errors.New("advertise refused")

	require.NoError(t, f.controller.Initialize(context.Background()))
	assert.Equal(t, domain.PhaseScanning, f.controller.Snapshot().Phase)
}

func TestSessionNilTransportIsUnavailable(t *testing.T) {
	controller := NewSessionController(SessionDeps{Logger: zaptest.NewLogger(t)}, DefaultSessionConfig())

	err := controller.Initialize(context.Background())
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.Equal(t, domain.PhaseUnavailable, controller.Snapshot().Phase)
}

func TestSessionScanCompletesWithPeersAndLayout(t *testing.T) {
	f := newControllerFixture(t, coffee)
	require.NoError(t, f.controller.Initialize(context.Background()))

	f.transport.complete(testPeers(3)...)

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhasePeersFound, state.Phase)
	assert.False(t, state.Scanning)
	require.Len(t, state.Peers, 3)
	require.Len(t, state.Positions, 3)
	for i, peer := range state.Peers {
		assert.Equal(t, peer.ID, state.Positions[i].PeerID)
		assert.GreaterOrEqual(t, peer.Avatar, 0)
		assert.Less(t, peer.Avatar, domain.AvatarCount)
	}
}

func TestSessionScanCapsDedupesAndAliasesPeers(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))

	peers := testPeers(7)
	peers[1].DisplayName = ""
	peers = append([]domain.Peer{peers[0], {ID: "no-token"}}, peers...)
	f.transport.complete(peers...)

	state := f.controller.Snapshot()
	require.Len(t, state.Peers, domain.MaxPeers)
	assert.Equal(t, domain.PeerID("peer-0"), state.Peers[0].ID)
	assert.Equal(t, domain.PeerID("peer-1"), state.Peers[1].ID)
	assert.Contains(t, domain.AnonymousAliases, state.Peers[1].DisplayName)
}

func TestSessionScanTimeoutWithNoPeers(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))

	f.clock.fireAll()

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseNoPeers, state.Phase)
	assert.False(t, state.Scanning)
	assert.True(t, state.ScanTimedOut)
	assert.NoError(t, state.Err)
	assert.Equal(t, 1, f.transport.stopScanCalls)
}

func TestSessionScanTimeoutKeepsDiscoveredPeers(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))

	onFound, _ := f.transport.callbacks()
	for _, peer := range testPeers(2) {
		onFound(peer)
		onFound(peer)
	}
	f.clock.fireAll()

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhasePeersFound, state.Phase)
	assert.Len(t, state.Peers, 2)
	assert.Len(t, state.Positions, 2)
}

func TestSessionLateTimeoutStopLeavesNewerScanRunning(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))

	f.controller.mu.Lock()
	timedOut := f.controller.epoch
	f.controller.mu.Unlock()

	f.clock.fireAll()
	require.Equal(t, 1, f.transport.stopScanCalls)

	require.NoError(t, f.controller.Refresh(context.Background()))
	require.Equal(t, 2, f.transport.scanCalls)

	// the stop for the elapsed window arrives after the rescan started
	f.controller.stopTimedOutScan(timedOut)
	assert.Equal(t, 1, f.transport.stopScanCalls)

	f.transport.complete(testPeers(2)...)
	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhasePeersFound, state.Phase)
	assert.Len(t, state.Peers, 2)
}

func TestSessionLateCompletionAfterTimeoutIsDiscarded(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))
	_, onComplete := f.transport.callbacks()

	f.clock.fireAll()
	onComplete(testPeers(3))

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseNoPeers, state.Phase)
	assert.Empty(t, state.Peers)
}

func TestSessionStaleScanResultIsDiscarded(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))
	_, staleComplete := f.transport.callbacks()
	f.transport.complete()

	require.NoError(t, f.controller.Refresh(context.Background()))
	require.Equal(t, 2, f.transport.scanCalls)

	staleComplete(testPeers(4))
	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseScanning, state.Phase)
	assert.Empty(t, state.Peers)

	f.transport.complete(testPeers(2)...)
	assert.Len(t, f.controller.Snapshot().Peers, 2)
}

func TestSessionStartScanWhileScanningIsNoop(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))

	require.NoError(t, f.controller.StartScan(context.Background()))
	assert.Equal(t, 1, f.transport.scanCalls)
}

func TestSessionStartScanFailureEndsWithNoPeers(t *testing.T) {
	f := newControllerFixture(t)
	f.transport.scanErr = errors.New("scanner busy")

	err := f.controller.Initialize(context.Background())
	require.Error(t, err)

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseNoPeers, state.Phase)
	assert.False(t, state.Scanning)
	assert.Error(t, state.Err)
}

func TestSessionRefreshWhileScanningIsNoop(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.controller.Initialize(context.Background()))
	before := f.controller.Snapshot()

	require.NoError(t, f.controller.Refresh(context.Background()))

	assert.Equal(t, before, f.controller.Snapshot())
	assert.Equal(t, 1, f.transport.scanCalls)
}

func TestSessionRefreshClearsPeersAndSelection(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 3)

	require.NoError(t, f.controller.Refresh(context.Background()))

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseScanning, state.Phase)
	assert.Empty(t, state.Peers)
	assert.Empty(t, state.Positions)
	assert.Nil(t, state.SelectedItem)
	assert.Equal(t, 1, f.transport.initCalls)
}

func TestSessionRefreshFromUnavailableReinitializes(t *testing.T) {
	f := newControllerFixture(t)
	f.transport.initErr = errors.New("bluetooth off")
	require.Error(t, f.controller.Initialize(context.Background()))

	f.transport.initErr = nil
	require.NoError(t, f.controller.Refresh(context.Background()))

	assert.Equal(t, 2, f.transport.initCalls)
	assert.Equal(t, domain.PhaseScanning, f.controller.Snapshot().Phase)
}

func TestSessionSelectItem(t *testing.T) {
	f := newControllerFixture(t, coffee)
	require.NoError(t, f.controller.Initialize(context.Background()))
	f.transport.complete(testPeers(2)...)

	require.NoError(t, f.controller.SelectItem(&coffee))
	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseAwaitingSelection, state.Phase)
	require.NotNil(t, state.SelectedItem)
	assert.Equal(t, coffee.ID, state.SelectedItem.ID)

	require.NoError(t, f.controller.SelectItem(nil))
	state = f.controller.Snapshot()
	assert.Equal(t, domain.PhasePeersFound, state.Phase)
	assert.Nil(t, state.SelectedItem)
}

func TestSessionSelectItemRejectsInvalid(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 2)

	err := f.controller.SelectItem(&domain.TransferableItem{Name: "no id"})
	require.ErrorIs(t, err, domain.ErrSelectionInvalid)

	err = f.controller.SelectItem(&domain.TransferableItem{ID: "unknown"})
	require.ErrorIs(t, err, domain.ErrSelectionInvalid)

	state := f.controller.Snapshot()
	require.NotNil(t, state.SelectedItem)
	assert.Equal(t, coffee.ID, state.SelectedItem.ID)
}

func TestSessionSelectItemByID(t *testing.T) {
	f := newControllerFixture(t, coffee)
	require.NoError(t, f.controller.Initialize(context.Background()))
	f.transport.complete(testPeers(1)...)

	require.NoError(t, f.controller.SelectItemByID(coffee.ID))
	assert.Equal(t, domain.PhaseAwaitingSelection, f.controller.Snapshot().Phase)

	err := f.controller.SelectItemByID("missing")
	require.ErrorIs(t, err, domain.ErrSelectionInvalid)
	require.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestSessionSelectionSurvivesRescan(t *testing.T) {
	f := newControllerFixture(t, coffee)
	require.NoError(t, f.controller.Initialize(context.Background()))
	require.NoError(t, f.controller.SelectItem(&coffee))

	f.transport.complete(testPeers(2)...)
	assert.Equal(t, domain.PhaseAwaitingSelection, f.controller.Snapshot().Phase)
}

func TestSessionDragSendsToOneOfThreePeers(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 3)

	var sentTokens []string
	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).
		Run(func(_ context.Context, _ domain.ItemID, tokens []string) { sentTokens = tokens }).
		Return(nil).Once()

	outcome, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.NoError(t, err)
	assert.False(t, outcome.Cancelled)

	require.Len(t, sentTokens, 1)
	assert.Contains(t, []string{"token-0", "token-1", "token-2"}, sentTokens[0])
	assert.Equal(t, outcome.Target.TransferToken, sentTokens[0])

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseTransferSucceeded, state.Phase)
	assert.False(t, state.Transferring)
	assert.Equal(t, outcome.Target.ID, state.LastTransferTargetID)
	require.NotNil(t, state.Ack)
	assert.True(t, state.Ack.Succeeded)
	assert.False(t, f.catalog.Contains(coffee.ID))

	records, err := f.history.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, coffee.ID, records[0].ItemID)
	assert.Equal(t, outcome.Target.ID, records[0].PeerID)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, f.clock.Now(), records[0].SentAt)
}

func TestSessionShortDragIsCancelled(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 3)

	for _, distance := range []float64{0, 40, DefaultDragThreshold} {
		outcome, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: distance})
		require.NoError(t, err)
		assert.True(t, outcome.Cancelled)
		assert.Equal(t, domain.PhaseAwaitingSelection, f.controller.Snapshot().Phase)
	}

	f.transfers.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, f.catalog.Contains(coffee.ID))
}

func TestSessionDragPreconditions(t *testing.T) {
	f := newControllerFixture(t, coffee)
	release := domain.DragRelease{Distance: 200}

	_, err := f.controller.DragReleased(context.Background(), release)
	require.ErrorIs(t, err, domain.ErrNoSelection)

	require.NoError(t, f.controller.Initialize(context.Background()))
	require.NoError(t, f.controller.SelectItem(&coffee))
	_, err = f.controller.DragReleased(context.Background(), release)
	require.ErrorIs(t, err, domain.ErrScanInProgress)

	f.transport.complete()
	_, err = f.controller.DragReleased(context.Background(), release)
	require.ErrorIs(t, err, domain.ErrNoPeers)
}

func TestSessionOnlyOneTransferInFlight(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 3)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).
		Run(func(context.Context, domain.ItemID, []string) {
			close(entered)
			<-release
		}).
		Return(nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
		done <- err
	}()
	<-entered

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseTransferring, state.Phase)
	assert.True(t, state.Transferring)
	assert.False(t, state.Scanning)
	assert.NotNil(t, state.SelectedItem)

	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.ErrorIs(t, err, domain.ErrTransferInFlight)
	require.ErrorIs(t, f.controller.SelectItem(nil), domain.ErrTransferInFlight)
	require.ErrorIs(t, f.controller.Refresh(context.Background()), domain.ErrTransferInFlight)

	close(release)
	require.NoError(t, <-done)
	f.transfers.AssertNumberOfCalls(t, "Send", 1)
}

func TestSessionTransferSurvivesCallerCancellation(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).
		Run(func(sendCtx context.Context, _ domain.ItemID, _ []string) {
			cancel()
			assert.NoError(t, sendCtx.Err())
		}).
		Return(nil).Once()

	_, err := f.controller.DragReleased(ctx, domain.DragRelease{Distance: 150})
	require.NoError(t, err)
}

func TestSessionTransferFailureThenDismissKeepsSelection(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 2)

	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).
		Return(&domain.TransferRejectedError{Code: "GIFTICON_EXPIRED", Message: "This gifticon has expired."}).Once()

	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.ErrorIs(t, err, domain.ErrTransferRejected)

	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseTransferFailed, state.Phase)
	require.NotNil(t, state.Ack)
	assert.False(t, state.Ack.Succeeded)
	assert.Equal(t, "This gifticon has expired.", state.Ack.Message)
	assert.True(t, f.catalog.Contains(coffee.ID))

	_, err = f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.ErrorIs(t, err, domain.ErrAcknowledgmentPending)

	require.NoError(t, f.controller.Dismiss(context.Background()))
	state = f.controller.Snapshot()
	assert.Equal(t, domain.PhaseAwaitingSelection, state.Phase)
	assert.Nil(t, state.Ack)
	require.NotNil(t, state.SelectedItem)
	assert.Equal(t, 1, f.transport.scanCalls)
}

func TestSessionTransferFailureUsesGenericMessage(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 1)

	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, []string{"token-0"}).
		Return(errors.New("connection reset")).Once()

	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 101})
	require.ErrorIs(t, err, domain.ErrTransferRejected)
	assert.Equal(t, domain.DefaultTransferFailureMessage, f.controller.Snapshot().Ack.Message)
}

func TestSessionDismissAfterSuccessRescansAndKeepsLayout(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 3)
	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).Return(nil).Once()

	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.NoError(t, err)
	before := f.controller.Snapshot().Positions

	require.NoError(t, f.controller.Dismiss(context.Background()))
	state := f.controller.Snapshot()
	assert.Equal(t, domain.PhaseScanning, state.Phase)
	assert.Nil(t, state.SelectedItem)
	assert.Nil(t, state.Ack)

	f.transport.complete(testPeers(3)...)
	after := f.controller.Snapshot().Positions
	require.Len(t, after, 3)
	for i := range after {
		assert.Equal(t, before[i].X, after[i].X)
		assert.Equal(t, before[i].Y, after[i].Y)
	}

	require.ErrorIs(t, f.controller.Dismiss(context.Background()), domain.ErrNothingToDismiss)
}

func TestSessionHistoryFailureDoesNotFailTransfer(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.history.err = errors.New("disk full")
	f.readyWithPeers(t, 1)
	f.transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).Return(nil).Once()

	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseTransferSucceeded, f.controller.Snapshot().Phase)
}

func TestSessionCloseSwallowsTeardownFailures(t *testing.T) {
	f := newControllerFixture(t)
	f.transport.stopScanErr = errors.New("scanner stuck")
	f.transport.stopAdvPanic = true
	require.NoError(t, f.controller.Initialize(context.Background()))

	updates, _ := f.controller.Subscribe(4)

	assert.NotPanics(t, func() { f.controller.Close(context.Background()) })
	assert.NotPanics(t, func() { f.controller.Close(context.Background()) })

	assert.Equal(t, domain.PhaseIdle, f.controller.Snapshot().Phase)
	assert.Equal(t, 1, f.transport.stopScanCalls)
	assert.Equal(t, 2, f.transport.stopAdvCalls)

	for range updates {
	}

	_, onComplete := f.transport.callbacks()
	onComplete(testPeers(2))
	assert.Empty(t, f.controller.Snapshot().Peers)

	require.ErrorIs(t, f.controller.Initialize(context.Background()), domain.ErrSessionClosed)
	_, err := f.controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSessionSubscribeReceivesTransitions(t *testing.T) {
	f := newControllerFixture(t)
	updates, unsubscribe := f.controller.Subscribe(8)

	require.NoError(t, f.controller.Initialize(context.Background()))
	f.transport.complete(testPeers(1)...)

	var phases []domain.Phase
	for len(updates) > 0 {
		phases = append(phases, (<-updates).Phase)
	}
	assert.Equal(t, []domain.Phase{domain.PhaseInitializing, domain.PhaseScanning, domain.PhasePeersFound}, phases)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
}

func TestSessionSnapshotIsIsolated(t *testing.T) {
	f := newControllerFixture(t, coffee)
	f.readyWithPeers(t, 2)

	snapshot := f.controller.Snapshot()
	snapshot.Peers[0].DisplayName = "mutated"
	snapshot.SelectedItem.Name = "mutated"

	state := f.controller.Snapshot()
	assert.NotEqual(t, "mutated", state.Peers[0].DisplayName)
	assert.Equal(t, coffee.Name, state.SelectedItem.Name)
}

func TestSessionPreloadFinishingAfterSendDoesNotRestoreItem(t *testing.T) {
	provider := mocks.NewMockGiftCatalog(t)
	started := make(chan struct{})
	release := make(chan struct{})
	provider.EXPECT().List(mock.Anything, 0, DefaultCatalogPageSize).
		Run(func(context.Context, int, int) {
			close(started)
			<-release
		}).
		Return(domain.CatalogPage{Items: []domain.TransferableItem{coffee}}, nil).Once()

	logger := zaptest.NewLogger(t)
	transport := &fakeTransport{}
	transfers := mocks.NewMockTransferAPI(t)
	catalog := NewCatalog(provider, 0, logger)
	cfg := DefaultSessionConfig()
	cfg.PreloadCatalog = true
	controller := NewSessionController(SessionDeps{
		Transport: transport,
		Transfers: transfers,
		Catalog:   catalog,
		History:   &memoryHistory{},
		Clock:     newFakeClock(),
		Logger:    logger,
		Rand:      rand.New(rand.NewSource(3)),
	}, cfg)

	require.NoError(t, controller.Initialize(context.Background()))
	transport.complete(testPeers(2)...)
	<-started

	require.NoError(t, controller.SelectItem(&coffee))
	transfers.EXPECT().Send(mock.Anything, coffee.ID, mock.Anything).Return(nil).Once()
	_, err := controller.DragReleased(context.Background(), domain.DragRelease{Distance: 150})
	require.NoError(t, err)
	require.Equal(t, domain.PhaseTransferSucceeded, controller.Snapshot().Phase)

	close(release)
	require.Eventually(t, catalog.Loaded, time.Second, 5*time.Millisecond)

	assert.False(t, catalog.Contains(coffee.ID))
	require.NoError(t, controller.Dismiss(context.Background()))
	assert.ErrorIs(t, controller.SelectItem(&coffee), domain.ErrSelectionInvalid)
}
