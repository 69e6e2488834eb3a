// Package layout places discovered peers around the sender on a radial map.
package layout

import (
	"math"
	"math/rand"

	"github.com/bnema/giveaway-cli/internal/domain"
)

const (
	DefaultIconSize   = 90.0
	DefaultEdgeMargin = 15.0

	innerRadiusRatio = 0.15
	ringSpacingRatio = 0.7
	radiusJitter     = 0.10
	angleJitter      = 15 * math.Pi / 180
)

// tierBands are multiples of the ring spacing added to the inner radius.
var tierBands = [domain.TierCount]float64{0.7, 1.5, 2.2}

type Bounds struct {
	Width  float64
	Height float64
}

func (b Bounds) Center() (float64, float64) {
	return b.Width / 2, b.Height / 2
}

type Config struct {
	IconSize   float64
	EdgeMargin float64
}

func DefaultConfig() Config {
	return Config{IconSize: DefaultIconSize, EdgeMargin: DefaultEdgeMargin}
}

type Engine struct {
	cfg Config
	rng *rand.Rand
}

// NewEngine returns an engine drawing randomness from rng. The engine does not
// lock rng; callers sharing it must serialize access.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if cfg.IconSize <= 0 {
		cfg.IconSize = DefaultIconSize
	}
	if cfg.EdgeMargin < 0 {
		cfg.EdgeMargin = DefaultEdgeMargin
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	return &Engine{cfg: cfg, rng: rng}
}

// ComputePositions maps peers to display positions. When previous already has
// one position per peer it is returned as is, so redundant peer updates do not
// shuffle the map.
func (e *Engine) ComputePositions(peers []domain.Peer, previous []domain.LayoutPosition, bounds Bounds) []domain.LayoutPosition {
	if len(peers) == 0 {
		return []domain.LayoutPosition{}
	}
	if len(previous) == len(peers) {
		return previous
	}

	centerX, centerY := bounds.Center()
	inner := bounds.Width * innerRadiusRatio
	spacing := inner * 2 * ringSpacingRatio
	maxRadius := inner + spacing*2

	startAngle := e.rng.Float64() * 2 * math.Pi
	step := 2 * math.Pi / float64(len(peers))

	positions := make([]domain.LayoutPosition, 0, len(peers))
	for i, peer := range peers {
		tier := domain.Tier(e.rng.Intn(domain.TierCount))

		radius := (inner + spacing*tierBands[tier]) * (1 + (e.rng.Float64()*2-1)*radiusJitter)
		radius = math.Min(radius, maxRadius)

		angle := startAngle + step*float64(i) + (e.rng.Float64()*2-1)*angleJitter

		scale := tier.Scale()
		half := e.footprint(scale) / 2

		positions = append(positions, domain.LayoutPosition{
			PeerID:  peer.ID,
			X:       clamp(centerX+radius*math.Cos(angle), e.cfg.EdgeMargin+half, bounds.Width-e.cfg.EdgeMargin-half),
			Y:       clamp(centerY+radius*math.Sin(angle), e.cfg.EdgeMargin+half, bounds.Height-e.cfg.EdgeMargin-half),
			Scale:   scale,
			Opacity: tier.Opacity(),
			Tier:    tier,
		})
	}

	return positions
}

// footprint is the rendered icon size at scale.
func (e *Engine) footprint(scale float64) float64 {
	return e.cfg.IconSize * scale
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}

	return v
}
