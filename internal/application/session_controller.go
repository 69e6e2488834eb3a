package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/layout"
	"github.com/bnema/giveaway-cli/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultScanWindow    = 5 * time.Second
	DefaultDragThreshold = 100.0
	DefaultScreenWidth   = 390.0
	DefaultScreenHeight  = 844.0
)

type SessionConfig struct {
	ScanWindow    time.Duration
	DragThreshold float64
	MaxPeers      int
	Screen        layout.Bounds
	Layout        layout.Config
	// PreloadCatalog loads the first catalog page once peers are found.
	PreloadCatalog bool
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ScanWindow:    DefaultScanWindow,
		DragThreshold: DefaultDragThreshold,
		MaxPeers:      domain.MaxPeers,
		Screen:        layout.Bounds{Width: DefaultScreenWidth, Height: DefaultScreenHeight},
		Layout:        layout.DefaultConfig(),
	}
}

type SessionDeps struct {
	Transport   ports.ProximityTransport
	Permissions ports.PermissionGate
	Transfers   ports.TransferAPI
	Catalog     *Catalog
	History     ports.TransferHistory
	Clock       ports.Clock
	Logger      *zap.Logger
	Rand        *rand.Rand
}

// SessionController drives one give-away session: discovery, layout, item
// selection and the single in-flight transfer. Every state transition happens
// under mu; asynchronous completions carry the epoch they started in and are
// dropped once the epoch has moved on.
type SessionController struct {
	transport   ports.ProximityTransport
	permissions ports.PermissionGate
	transfers   ports.TransferAPI
	catalog     *Catalog
	history     ports.TransferHistory
	clock       ports.Clock
	logger      *zap.Logger
	rng         *rand.Rand
	layout      *layout.Engine
	cfg         SessionConfig

	// scanMu orders transport scan starts against the stop issued when a
	// scan window elapses. Lock it before mu, never while holding mu.
	scanMu sync.Mutex

	mu           sync.Mutex
	state        domain.SessionState
	epoch        uint64
	ready        bool
	initializing bool
	closed       bool
	scanTimer    ports.Timer
	discovered   []domain.Peer
	subscribers  map[int]chan domain.SessionState
	nextSubID    int
}

func NewSessionController(deps SessionDeps, cfg SessionConfig) *SessionController {
	defaults := DefaultSessionConfig()
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = defaults.ScanWindow
	}
	if cfg.DragThreshold <= 0 {
		cfg.DragThreshold = defaults.DragThreshold
	}
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = defaults.MaxPeers
	}
	if cfg.Screen.Width <= 0 || cfg.Screen.Height <= 0 {
		cfg.Screen = defaults.Screen
	}

	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &SessionController{
		transport:   deps.Transport,
		permissions: deps.Permissions,
		transfers:   deps.Transfers,
		catalog:     deps.Catalog,
		history:     deps.History,
		clock:       deps.Clock,
		logger:      deps.Logger,
		rng:         deps.Rand,
		layout:      layout.NewEngine(cfg.Layout, deps.Rand),
		cfg:         cfg,
		state:       domain.SessionState{Phase: domain.PhaseIdle},
		subscribers: map[int]chan domain.SessionState{},
	}
}

// Initialize prepares the transport, asks for permissions, starts advertising
// and kicks off the first scan. A transport that cannot start leaves the
// session Unavailable; the error is returned and not retried.
func (c *SessionController) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.initializing || c.state.Scanning || c.state.Transferring {
		c.mu.Unlock()
		return nil
	}
	c.initializing = true
	c.epoch++
	epoch := c.epoch
	c.state.Err = nil
	c.setPhaseLocked(domain.PhaseInitializing)
	c.mu.Unlock()

	err := c.prepareTransport(ctx)

	c.mu.Lock()
	c.initializing = false
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.ready = false
		c.state.Err = err
		c.setPhaseLocked(domain.PhaseUnavailable)
		c.mu.Unlock()
		c.logger.Error("proximity session unavailable", zap.Error(err))
		return err
	}
	c.ready = true
	c.mu.Unlock()

	return c.StartScan(ctx)
}

func (c *SessionController) prepareTransport(ctx context.Context) error {
	if c.transport == nil {
		return domain.ErrTransportUnavailable
	}

	if err := c.transport.StopAdvertising(ctx); err != nil {
		c.logger.Debug("stop stale advertising", zap.Error(err))
	}

	if err := c.transport.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransportUnavailable, err)
	}

	if c.permissions != nil {
		granted, err := c.permissions.Request(ctx)
		if err != nil {
			return fmt.Errorf("%w: request permissions: %w", domain.ErrTransportUnavailable, err)
		}
		if !granted {
			return fmt.Errorf("%w: %w", domain.ErrTransportUnavailable, domain.ErrPermissionDenied)
		}
	}

	if err := c.transport.StartAdvertising(ctx); err != nil {
		c.logger.Warn("start advertising", zap.Error(err))
	}

	return nil
}

// StartScan opens a bounded scan window. It returns immediately when a scan is
// already running or the transport is not ready.
func (c *SessionController) StartScan(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state.Scanning || c.transport == nil || !c.ready {
		c.mu.Unlock()
		return nil
	}
	if c.state.Transferring {
		c.mu.Unlock()
		return domain.ErrTransferInFlight
	}

	c.epoch++
	epoch := c.epoch
	c.discovered = nil
	c.state.Scanning = true
	c.state.ScanTimedOut = false
	c.state.Err = nil
	c.stopTimerLocked()
	c.scanTimer = c.clock.AfterFunc(c.cfg.ScanWindow, func() { c.onScanTimeout(epoch) })
	c.setPhaseLocked(domain.PhaseScanning)
	c.mu.Unlock()

	c.scanMu.Lock()
	err := c.transport.StartScan(ctx,
		func(peer domain.Peer) { c.onPeerFound(epoch, peer) },
		func(peers []domain.Peer) { c.onScanComplete(epoch, peers) },
	)
	c.scanMu.Unlock()
	if err == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch == c.epoch && c.state.Scanning {
		c.stopTimerLocked()
		c.state.Scanning = false
		c.state.Peers = nil
		c.state.Positions = nil
		c.state.Err = err
		c.setPhaseLocked(domain.PhaseNoPeers)
	}

	return fmt.Errorf("start scan: %w", err)
}

func (c *SessionController) onPeerFound(epoch uint64, peer domain.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || !c.state.Scanning {
		return
	}
	for _, known := range c.discovered {
		if known.ID == peer.ID {
			return
		}
	}
	c.discovered = append(c.discovered, peer)
}

func (c *SessionController) onScanComplete(epoch uint64, peers []domain.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || !c.state.Scanning {
		c.logger.Debug("discard stale scan result", zap.Uint64("epoch", epoch), zap.Int("peers", len(peers)))
		return
	}
	if len(peers) == 0 {
		peers = c.discovered
	}

	c.finishScanLocked(peers)
}

func (c *SessionController) onScanTimeout(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || !c.state.Scanning {
		c.mu.Unlock()
		return
	}
	c.scanTimer = nil
	c.logger.Info("scan window elapsed", zap.Int("peers", len(c.discovered)), zap.Error(domain.ErrScanTimeout))
	c.state.ScanTimedOut = true
	c.finishScanLocked(c.discovered)
	c.mu.Unlock()

	c.stopTimedOutScan(epoch)
}

// stopTimedOutScan stops the transport scan of epoch unless a newer scan has
// started since the window elapsed.
func (c *SessionController) stopTimedOutScan(epoch uint64) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	c.mu.Lock()
	current := epoch == c.epoch
	c.mu.Unlock()
	if !current {
		c.logger.Debug("skip stop of superseded scan", zap.Uint64("epoch", epoch))
		return
	}

	if err := c.transport.StopScan(context.Background()); err != nil {
		c.logger.Warn("stop scan after timeout", zap.Error(err))
	}
}

func (c *SessionController) finishScanLocked(raw []domain.Peer) {
	c.stopTimerLocked()
	c.state.Scanning = false
	c.discovered = nil

	peers := c.normalizePeersLocked(raw)
	c.state.Peers = peers
	if len(peers) == 0 {
		c.state.Positions = nil
		c.setPhaseLocked(domain.PhaseNoPeers)
		return
	}

	positions := c.layout.ComputePositions(peers, c.state.Positions, c.cfg.Screen)
	c.state.Positions = bindPositions(peers, positions)

	if c.state.SelectedItem != nil {
		c.setPhaseLocked(domain.PhaseAwaitingSelection)
	} else {
		c.setPhaseLocked(domain.PhasePeersFound)
	}

	if c.cfg.PreloadCatalog && c.catalog != nil && !c.catalog.Loaded() {
		go c.catalog.Load(context.Background())
	}
}

func (c *SessionController) normalizePeersLocked(raw []domain.Peer) []domain.Peer {
	peers := make([]domain.Peer, 0, len(raw))
	seen := make(map[domain.PeerID]struct{}, len(raw))
	for _, peer := range raw {
		if len(peers) == c.cfg.MaxPeers {
			break
		}
		if err := peer.Validate(); err != nil {
			c.logger.Debug("skip invalid peer", zap.String("peer_id", string(peer.ID)), zap.Error(err))
			continue
		}
		if _, ok := seen[peer.ID]; ok {
			continue
		}
		seen[peer.ID] = struct{}{}

		if peer.DisplayName == "" {
			peer.DisplayName = domain.AnonymousAliases[c.rng.Intn(len(domain.AnonymousAliases))]
		}
		peer.Avatar = c.rng.Intn(domain.AvatarCount)
		peers = append(peers, peer)
	}

	return peers
}

// bindPositions points reused positions at the current peers without moving them.
func bindPositions(peers []domain.Peer, positions []domain.LayoutPosition) []domain.LayoutPosition {
	bound := make([]domain.LayoutPosition, len(positions))
	copy(bound, positions)
	for i := range bound {
		if i < len(peers) {
			bound[i].PeerID = peers[i].ID
		}
	}

	return bound
}

// SelectItem chooses the item to give away. A nil or empty item clears the
// selection.
func (c *SessionController) SelectItem(item *domain.TransferableItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.state.Transferring {
		return domain.ErrTransferInFlight
	}

	if item == nil || item.IsZero() {
		c.state.SelectedItem = nil
		if c.state.Phase == domain.PhaseAwaitingSelection {
			c.setPhaseLocked(domain.PhasePeersFound)
		} else {
			c.publishLocked()
		}
		return nil
	}

	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSelectionInvalid, err)
	}
	if c.catalog != nil && c.catalog.Removed(item.ID) {
		return fmt.Errorf("%w: item %s was already given away", domain.ErrSelectionInvalid, item.ID)
	}
	if c.catalog != nil && c.catalog.Loaded() && !c.catalog.Contains(item.ID) {
		return fmt.Errorf("%w: item %s is not in the catalog", domain.ErrSelectionInvalid, item.ID)
	}

	selected := *item
	c.state.SelectedItem = &selected
	if c.state.Phase == domain.PhasePeersFound {
		c.setPhaseLocked(domain.PhaseAwaitingSelection)
	} else {
		c.publishLocked()
	}

	return nil
}

// SelectItemByID resolves id through the catalog cache before selecting it.
func (c *SessionController) SelectItemByID(id domain.ItemID) error {
	if c.catalog == nil {
		return fmt.Errorf("%w: %w", domain.ErrSelectionInvalid, domain.ErrItemNotFound)
	}

	item, ok := c.catalog.Find(id)
	if !ok {
		return fmt.Errorf("%w: %w: %s", domain.ErrSelectionInvalid, domain.ErrItemNotFound, id)
	}

	return c.SelectItem(&item)
}

// DragReleased handles the end of a drag of the gift token. Short drags are
// treated as cancelled. Longer drags send the selected item to a peer picked
// at random; the drag direction does not steer the choice.
func (c *SessionController) DragReleased(ctx context.Context, release domain.DragRelease) (domain.TransferOutcome, error) {
	c.mu.Lock()
	if err := c.transferPreconditionsLocked(); err != nil {
		c.mu.Unlock()
		return domain.TransferOutcome{}, err
	}

	item := *c.state.SelectedItem
	if release.Distance <= c.cfg.DragThreshold {
		c.setPhaseLocked(domain.PhaseAwaitingSelection)
		c.mu.Unlock()
		return domain.TransferOutcome{Cancelled: true, Item: item}, nil
	}

	target := c.state.Peers[c.rng.Intn(len(c.state.Peers))]
	c.state.Transferring = true
	c.setPhaseLocked(domain.PhaseTransferring)
	c.mu.Unlock()

	c.logger.Info("sending gift",
		zap.String("item_id", string(item.ID)),
		zap.String("peer_id", string(target.ID)),
		zap.Float64("drag_distance", release.Distance),
	)

	// Once issued a transfer runs to completion, even if the caller goes away.
	sendErr := c.transfers.Send(context.WithoutCancel(ctx), item.ID, []string{target.TransferToken})

	outcome := domain.TransferOutcome{Item: item, Target: target}

	c.mu.Lock()
	c.state.Transferring = false
	if sendErr != nil {
		rejected := domain.AsTransferRejected(sendErr)
		if !c.closed {
			c.state.Ack = &domain.TransferAck{Item: item, Target: target, Message: rejected.UserMessage()}
			c.setPhaseLocked(domain.PhaseTransferFailed)
		}
		c.mu.Unlock()

		c.logger.Warn("gift transfer failed", zap.String("item_id", string(item.ID)), zap.Error(sendErr))
		return outcome, rejected
	}

	if c.catalog != nil {
		c.catalog.Remove(item.ID)
	}
	if !c.closed {
		c.state.LastTransferTargetID = target.ID
		c.state.Ack = &domain.TransferAck{
			Succeeded: true,
			Item:      item,
			Target:    target,
			Message:   fmt.Sprintf("Sent %s to %s.", itemLabel(item), target.Label()),
		}
		c.setPhaseLocked(domain.PhaseTransferSucceeded)
	}
	c.mu.Unlock()

	c.recordTransfer(ctx, item, target)

	return outcome, nil
}

func (c *SessionController) transferPreconditionsLocked() error {
	switch {
	case c.closed:
		return domain.ErrSessionClosed
	case c.state.Transferring:
		return domain.ErrTransferInFlight
	case c.transfers == nil:
		return fmt.Errorf("%w: no transfer api configured", domain.ErrTransferRejected)
	case c.state.SelectedItem == nil:
		return domain.ErrNoSelection
	case c.state.Scanning:
		return domain.ErrScanInProgress
	case c.state.Ack != nil:
		return domain.ErrAcknowledgmentPending
	case len(c.state.Peers) == 0:
		return domain.ErrNoPeers
	default:
		return nil
	}
}

func (c *SessionController) recordTransfer(ctx context.Context, item domain.TransferableItem, target domain.Peer) {
	if c.history == nil {
		return
	}

	record := domain.TransferRecord{
		ID:       uuid.NewString(),
		ItemID:   item.ID,
		ItemName: item.Name,
		PeerID:   target.ID,
		PeerName: target.Label(),
		SentAt:   c.clock.Now().UTC(),
	}
	if err := c.history.Append(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warn("record transfer history", zap.String("item_id", string(item.ID)), zap.Error(err))
	}
}

// Dismiss acknowledges the last transfer result. A success starts a fresh
// scan; a failure returns to the peer map with the selection kept, or rescans
// when no peers remain.
func (c *SessionController) Dismiss(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	ack := c.state.Ack
	if ack == nil {
		c.mu.Unlock()
		return domain.ErrNothingToDismiss
	}
	c.state.Ack = nil

	if !ack.Succeeded && len(c.state.Peers) > 0 {
		c.setPhaseLocked(domain.PhaseAwaitingSelection)
		c.mu.Unlock()
		return nil
	}
	if ack.Succeeded {
		c.state.SelectedItem = nil
	}
	c.publishLocked()
	c.mu.Unlock()

	return c.StartScan(ctx)
}

// Refresh discards the current peers and selection and starts over. It is a
// no-op while a scan or initialization is still running.
func (c *SessionController) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.state.Transferring {
		c.mu.Unlock()
		return domain.ErrTransferInFlight
	}
	if c.state.Scanning || c.initializing {
		c.mu.Unlock()
		return nil
	}

	c.stopTimerLocked()
	c.epoch++
	c.discovered = nil
	c.state.Peers = nil
	c.state.Positions = nil
	c.state.SelectedItem = nil
	c.state.Ack = nil
	c.state.Err = nil
	c.state.ScanTimedOut = false
	c.state.LastTransferTargetID = ""
	ready := c.ready
	c.setPhaseLocked(domain.PhaseInitializing)
	c.mu.Unlock()

	if !ready {
		return c.Initialize(ctx)
	}

	return c.StartScan(ctx)
}

// Close ends the session. Stop failures are logged and never returned.
func (c *SessionController) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.epoch++
	c.state.Scanning = false
	c.setPhaseLocked(domain.PhaseIdle)
	c.closed = true
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		return
	}

	c.teardownStep(ctx, "stop scan", transport.StopScan)
	c.teardownStep(ctx, "stop advertising", transport.StopAdvertising)
}

func (c *SessionController) teardownStep(ctx context.Context, name string, step func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("session teardown", zap.Error(fmt.Errorf("%w: %s: panic: %v", domain.ErrTeardown, name, r)))
		}
	}()

	if err := step(ctx); err != nil {
		c.logger.Warn("session teardown", zap.Error(fmt.Errorf("%w: %s: %w", domain.ErrTeardown, name, err)))
	}
}

func (c *SessionController) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Subscribe streams snapshots after every transition. Slow readers miss
// intermediate snapshots rather than blocking the session.
func (c *SessionController) Subscribe(buffer int) (<-chan domain.SessionState, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan domain.SessionState, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				close(sub)
				delete(c.subscribers, id)
			}
		})
	}
}

// Catalog exposes the item cache backing this session.
func (c *SessionController) Catalog() *Catalog {
	return c.catalog
}

func (c *SessionController) setPhaseLocked(phase domain.Phase) {
	c.state.Phase = phase
	c.publishLocked()
}

func (c *SessionController) publishLocked() {
	snapshot := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (c *SessionController) snapshotLocked() domain.SessionState {
	snapshot := c.state.Clone()
	snapshot.Epoch = c.epoch

	return snapshot
}

func (c *SessionController) stopTimerLocked() {
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
}

func itemLabel(item domain.TransferableItem) string {
	if item.Name != "" {
		return item.Name
	}

	return string(item.ID)
}

// IsUnavailable reports whether err means proximity discovery cannot proceed.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrTransportUnavailable)
}
