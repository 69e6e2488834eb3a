// Package simulated provides an in-process proximity transport that "discovers"
// a fixed set of peers. It backs demos and tests where no radio is available.
package simulated

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	"go.uber.org/zap"
)

var ErrNotInitialized = errors.New("simulated transport not initialized")

type Options struct {
	Peers []domain.Peer
	// Delay is the pause before each peer is reported.
	Delay time.Duration
	// SkipComplete suppresses the completion callback, leaving the caller's
	// scan window to end the scan.
	SkipComplete bool
	InitErr      error
	Logger       *zap.Logger
}

type Transport struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	advertising bool
	stop        chan struct{}
	done        chan struct{}
}

var _ ports.ProximityTransport = (*Transport)(nil)

func NewTransport(opts Options) *Transport {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Peers = append([]domain.Peer(nil), opts.Peers...)

	return &Transport{opts: opts}
}

func (t *Transport) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.opts.InitErr != nil {
		return t.opts.InitErr
	}

	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()

	return nil
}

func (t *Transport) StartAdvertising(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return ErrNotInitialized
	}
	t.advertising = true

	return nil
}

func (t *Transport) StopAdvertising(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advertising = false
	return nil
}

func (t *Transport) Advertising() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.advertising
}

// StartScan reports the configured peers one by one from a goroutine. A scan
// already in progress is stopped first.
func (t *Transport) StartScan(_ context.Context, onPeerFound func(domain.Peer), onScanComplete func([]domain.Peer)) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}
	t.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop = stop
	t.done = done
	t.mu.Unlock()

	t.opts.Logger.Debug("simulated scan started", zap.Int("peers", len(t.opts.Peers)))
	go t.run(stop, done, onPeerFound, onScanComplete)

	return nil
}

func (t *Transport) run(stop, done chan struct{}, onPeerFound func(domain.Peer), onScanComplete func([]domain.Peer)) {
	defer close(done)

	found := make([]domain.Peer, 0, len(t.opts.Peers))
	for _, peer := range t.opts.Peers {
		if t.opts.Delay > 0 {
			timer := time.NewTimer(t.opts.Delay)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		select {
		case <-stop:
			return
		default:
		}

		found = append(found, peer)
		if onPeerFound != nil {
			onPeerFound(peer)
		}
	}

	if t.opts.SkipComplete || onScanComplete == nil {
		return
	}

	select {
	case <-stop:
	default:
		onScanComplete(found)
	}
}

// StopScan stops a running scan and waits for its goroutine to exit.
func (t *Transport) StopScan(context.Context) error {
	t.mu.Lock()
	done := t.done
	t.stopLocked()
	t.mu.Unlock()

	if done != nil {
		<-done
	}

	return nil
}

func (t *Transport) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
		t.done = nil
	}
}
