package domain

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseInitializing      Phase = "initializing"
	PhaseScanning          Phase = "scanning"
	PhasePeersFound        Phase = "peers_found"
	PhaseNoPeers           Phase = "no_peers"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhaseTransferring      Phase = "transferring"
	PhaseTransferSucceeded Phase = "transfer_succeeded"
	PhaseTransferFailed    Phase = "transfer_failed"
	PhaseUnavailable       Phase = "unavailable"
)

// Settled reports whether the phase is waiting on the user rather than on I/O.
func (p Phase) Settled() bool {
	switch p {
	case PhasePeersFound, PhaseNoPeers, PhaseAwaitingSelection,
		PhaseTransferSucceeded, PhaseTransferFailed, PhaseUnavailable:
		return true
	default:
		return false
	}
}

// TransferAck is the one-time result of a transfer. It stays on the session
// until the caller dismisses it.
type TransferAck struct {
	Succeeded bool
	Item      TransferableItem
	Target    Peer
	Message   string
}

type TransferOutcome struct {
	Cancelled bool
	Item      TransferableItem
	Target    Peer
}

type SessionState struct {
	Phase                Phase
	Peers                []Peer
	Positions            []LayoutPosition
	SelectedItem         *TransferableItem
	Scanning             bool
	Transferring         bool
	ScanTimedOut         bool
	LastTransferTargetID PeerID
	Ack                  *TransferAck
	Err                  error
	Epoch                uint64
}

// Clone returns a copy that shares no slices or pointers with s.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Peers != nil {
		out.Peers = append([]Peer(nil), s.Peers...)
	}
	if s.Positions != nil {
		out.Positions = append([]LayoutPosition(nil), s.Positions...)
	}
	if s.SelectedItem != nil {
		item := *s.SelectedItem
		out.SelectedItem = &item
	}
	if s.Ack != nil {
		ack := *s.Ack
		out.Ack = &ack
	}

	return out
}

func (s SessionState) PositionFor(id PeerID) (LayoutPosition, bool) {
	for _, position := range s.Positions {
		if position.PeerID == id {
			return position, true
		}
	}

	return LayoutPosition{}, false
}
