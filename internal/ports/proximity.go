package ports

import (
	"context"

	"github.com/bnema/giveaway-cli/internal/domain"
)

// ProximityTransport discovers and advertises nearby devices over a
// short-range transport.
//
// StartScan returns once the scan is running. onPeerFound may fire zero or
// more times with unique peers, then onScanComplete fires at most once with
// every peer seen. Callers must tolerate onScanComplete never firing.
// Stop operations are idempotent.
type ProximityTransport interface {
	Initialize(ctx context.Context) error
	StartAdvertising(ctx context.Context) error
	StopAdvertising(ctx context.Context) error
	StartScan(ctx context.Context, onPeerFound func(domain.Peer), onScanComplete func([]domain.Peer)) error
	StopScan(ctx context.Context) error
}

// PermissionGate asks the platform (or the user) for discovery permissions.
type PermissionGate interface {
	Request(ctx context.Context) (bool, error)
}
