package domain

// Tier is the distance band a peer is drawn in.
type Tier int

const (
	TierNear Tier = iota
	TierMid
	TierFar
)

const TierCount = 3

func (t Tier) Valid() bool {
	return t >= TierNear && t <= TierFar
}

func (t Tier) String() string {
	switch t {
	case TierNear:
		return "near"
	case TierMid:
		return "mid"
	case TierFar:
		return "far"
	default:
		return "unknown"
	}
}

// Scale shrinks farther peers by 15% per tier.
func (t Tier) Scale() float64 {
	return 1 - float64(t)*0.15
}

// Opacity fades farther peers by 10% per tier.
func (t Tier) Opacity() float64 {
	return 1 - float64(t)*0.10
}

type LayoutPosition struct {
	PeerID  PeerID
	X       float64
	Y       float64
	Scale   float64
	Opacity float64
	Tier    Tier
}
