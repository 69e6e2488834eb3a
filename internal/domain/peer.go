package domain

import "strings"

type PeerID string

// MaxPeers caps how many discovered peers a single scan keeps.
const MaxPeers = 5

// AvatarCount is the number of avatar glyphs a peer can be assigned.
const AvatarCount = 5

// AnonymousAliases are handed out to peers that do not advertise a display name.
var AnonymousAliases = []string{
	"Anonymous Donut",
	"Anonymous Frog",
	"Anonymous Shadow",
	"Anonymous Turtle",
	"Anonymous Dumpling",
	"Anonymous Penguin",
	"Anonymous Ghost",
}

type Peer struct {
	ID            PeerID `validate:"required"`
	DisplayName   string
	TransferToken string `validate:"required"`
	Avatar        int    `validate:"gte=0"`
}

func (p Peer) Validate() error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return validationError("id is required")
	}
	if strings.TrimSpace(p.TransferToken) == "" {
		return validationError("transfer token is required")
	}

	return validateStruct(p)
}

// Label is the name shown for a peer, falling back to its id.
func (p Peer) Label() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}

	return string(p.ID)
}

// DragRelease is emitted by the gesture layer when the gift token is let go.
// Direction is in radians and is currently not used for targeting.
type DragRelease struct {
	Distance  float64
	Direction float64
}
