package cascade

import (
	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/service"
)

const (
	// DefaultMaxLayers is the depth used when a caller supplies none.
	DefaultMaxLayers = 3
	// WarnLayers is the depth above which a run is expected to take a long time.
	WarnLayers = 3
	// MaxLayersCap is the hard depth limit.
	MaxLayersCap = 5
)

// Request describes one cascade run.
type Request struct {
	Start               domain.NeuronID `json:"start"`
	ConnectionThreshold int64           `json:"connectionThreshold"`
	PercentageThreshold float64         `json:"percentageThreshold"`
	MaxLayers           int             `json:"maxLayers"`
}

// NewRequest returns a request for start with the default thresholds and depth.
func NewRequest(start domain.NeuronID) Request {
	return Request{
		Start:               start,
		ConnectionThreshold: service.DefaultMinWeight,
		PercentageThreshold: service.DefaultMinPercent,
		MaxLayers:           DefaultMaxLayers,
	}
}

// Normalize clamps the depth to [0, MaxLayersCap] and negative thresholds to zero. It
// reports whether the requested depth exceeded WarnLayers.
func (r Request) Normalize() (Request, bool) {
	warn := r.MaxLayers > WarnLayers
	if r.MaxLayers > MaxLayersCap {
		r.MaxLayers = MaxLayersCap
	}
	if r.MaxLayers < 0 {
		r.MaxLayers = 0
	}
	if r.ConnectionThreshold < 0 {
		r.ConnectionThreshold = 0
	}
	if r.PercentageThreshold < 0 {
		r.PercentageThreshold = 0
	}
	return r, warn
}

// Thresholds converts the request into partner-table thresholds.
func (r Request) Thresholds() service.Thresholds {
	return service.Thresholds{MinWeight: r.ConnectionThreshold, MinPercent: r.PercentageThreshold}
}
