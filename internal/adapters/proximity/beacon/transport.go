// Package beacon discovers nearby devices on the local network. Each device
// periodically broadcasts a small JSON beacon over UDP and listens for the
// beacons of others.
package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPort          = 47800
	DefaultListenAddr    = "0.0.0.0:47800"
	DefaultBroadcastAddr = "255.255.255.255:47800"
	DefaultInterval      = time.Second

	protocolName    = "giveaway"
	protocolVersion = 1
	maxBeaconBytes  = 2048
)

var (
	ErrNotInitialized = errors.New("beacon transport not initialized")
	ErrClosed         = errors.New("beacon transport closed")
)

type Config struct {
	ListenAddr    string
	BroadcastAddr string
	Interval      time.Duration
	// Self is the identity advertised to others. An empty ID is replaced by a
	// random UUID on Initialize.
	Self domain.Peer
	// ScanWindow, when positive, makes the transport report completion itself
	// after the window. Otherwise the caller ends the scan.
	ScanWindow time.Duration
	Logger     *zap.Logger
}

type message struct {
	Proto   string `json:"proto"`
	Version int    `json:"v"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Token   string `json:"token"`
}

type Transport struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	conn        *net.UDPConn
	broadcast   *net.UDPAddr
	closed      bool
	readDone    chan struct{}
	advertStop  chan struct{}
	advertDone  chan struct{}
	scan        *scanState
	scanTimer   *time.Timer
	scanCounter uint64
}

type scanState struct {
	id         uint64
	seen       map[domain.PeerID]domain.Peer
	order      []domain.PeerID
	onFound    func(domain.Peer)
	onComplete func([]domain.Peer)
}

var _ ports.ProximityTransport = (*Transport)(nil)

func NewTransport(cfg Config) *Transport {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = DefaultBroadcastAddr
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Transport{cfg: cfg, logger: cfg.Logger.With(zap.String("transport", "beacon"))}
}

// Initialize binds the listen socket and starts reading beacons. Calling it
// again on a ready transport is a no-op.
func (t *Transport) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn != nil {
		return nil
	}

	if t.cfg.Self.ID == "" {
		t.cfg.Self.ID = domain.PeerID(uuid.NewString())
	}
	if err := t.cfg.Self.Validate(); err != nil {
		return fmt.Errorf("beacon identity: %w", err)
	}

	laddr, err := net.ResolveUDPAddr("udp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen address %s: %w", t.cfg.ListenAddr, err)
	}
	baddr, err := net.ResolveUDPAddr("udp", t.cfg.BroadcastAddr)
	if err != nil {
		return fmt.Errorf("resolve broadcast address %s: %w", t.cfg.BroadcastAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", t.cfg.ListenAddr, err)
	}

	t.conn = conn
	t.broadcast = baddr
	t.readDone = make(chan struct{})
	go t.readLoop(conn, t.readDone)

	t.logger.Info("beacon transport ready",
		zap.String("listen", conn.LocalAddr().String()),
		zap.String("broadcast", baddr.String()),
		zap.String("self", string(t.cfg.Self.ID)),
	)

	return nil
}

// Self returns the advertised identity.
func (t *Transport) Self() domain.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cfg.Self
}

func (t *Transport) localAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *Transport) StartAdvertising(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return ErrNotInitialized
	}
	if t.advertStop != nil {
		return nil
	}

	payload, err := json.Marshal(message{
		Proto:   protocolName,
		Version: protocolVersion,
		ID:      string(t.cfg.Self.ID),
		Name:    t.cfg.Self.DisplayName,
		Token:   t.cfg.Self.TransferToken,
	})
	if err != nil {
		return fmt.Errorf("encode beacon: %w", err)
	}

	t.advertStop = make(chan struct{})
	t.advertDone = make(chan struct{})
	go t.advertiseLoop(t.conn, t.broadcast, payload, t.advertStop, t.advertDone)

	return nil
}

func (t *Transport) StopAdvertising(context.Context) error {
	t.mu.Lock()
	stop, done := t.advertStop, t.advertDone
	t.advertStop, t.advertDone = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	return nil
}

func (t *Transport) advertiseLoop(conn *net.UDPConn, to *net.UDPAddr, payload []byte, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteToUDP(payload, to); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Debug("send beacon", zap.Error(err))
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// StartScan begins reporting beacons from other devices. A running scan is
// replaced.
func (t *Transport) StartScan(_ context.Context, onPeerFound func(domain.Peer), onScanComplete func([]domain.Peer)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return ErrNotInitialized
	}

	t.stopScanLocked()
	t.scanCounter++
	scan := &scanState{
		id:         t.scanCounter,
		seen:       map[domain.PeerID]domain.Peer{},
		onFound:    onPeerFound,
		onComplete: onScanComplete,
	}
	t.scan = scan

	if t.cfg.ScanWindow > 0 {
		t.scanTimer = time.AfterFunc(t.cfg.ScanWindow, func() { t.completeScan(scan.id) })
	}

	return nil
}

func (t *Transport) completeScan(id uint64) {
	t.mu.Lock()
	scan := t.scan
	if scan == nil || scan.id != id {
		t.mu.Unlock()
		return
	}
	t.scan = nil
	t.scanTimer = nil
	peers := scan.peers()
	t.mu.Unlock()

	if scan.onComplete != nil {
		scan.onComplete(peers)
	}
}

func (t *Transport) StopScan(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopScanLocked()
	return nil
}

func (t *Transport) stopScanLocked() {
	if t.scanTimer != nil {
		t.scanTimer.Stop()
		t.scanTimer = nil
	}
	t.scan = nil
}

func (s *scanState) peers() []domain.Peer {
	peers := make([]domain.Peer, 0, len(s.order))
	for _, id := range s.order {
		peers = append(peers, s.seen[id])
	}
	return peers
}

func (t *Transport) readLoop(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxBeaconBytes)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Debug("read beacon", zap.Error(err))
			continue
		}

		peer, ok := t.decode(buf[:n])
		if !ok {
			t.logger.Debug("ignore datagram", zap.Stringer("from", from), zap.Int("bytes", n))
			continue
		}
		t.observe(peer)
	}
}

func (t *Transport) decode(data []byte) (domain.Peer, bool) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Peer{}, false
	}
	if msg.Proto != protocolName || msg.Version != protocolVersion {
		return domain.Peer{}, false
	}

	peer := domain.Peer{ID: domain.PeerID(msg.ID), DisplayName: stripControl(msg.Name), TransferToken: msg.Token}
	if peer.Validate() != nil {
		return domain.Peer{}, false
	}

	return peer, true
}

// stripControl drops control characters so a remote name cannot drive the
// terminal.
func stripControl(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}

func (t *Transport) observe(peer domain.Peer) {
	t.mu.Lock()
	if peer.ID == t.cfg.Self.ID {
		t.mu.Unlock()
		return
	}
	scan := t.scan
	if scan == nil {
		t.mu.Unlock()
		return
	}
	if _, ok := scan.seen[peer.ID]; ok {
		t.mu.Unlock()
		return
	}
	scan.seen[peer.ID] = peer
	scan.order = append(scan.order, peer.ID)
	t.mu.Unlock()

	t.logger.Debug("peer discovered", zap.String("peer_id", string(peer.ID)))
	if scan.onFound != nil {
		scan.onFound(peer)
	}
}

// Close stops every loop and releases the socket.
func (t *Transport) Close() error {
	_ = t.StopAdvertising(context.Background())

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.stopScanLocked()
	conn, readDone := t.conn, t.readDone
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-readDone

	return err
}
