package tracker

import "github.com/alig146/tracker/internal/monitoring"

// Config bundles the tuning of a full reconstruction pass.
type Config struct {
	Seed SeedConfig
	Fit  FitSettings

	// MaxVertexChiSquared prunes tracks whose vertex chi-squared
	// contribution exceeds it; zero disables pruning.
	MaxVertexChiSquared float64
}

// DefaultConfig returns the default reconstruction tuning.
func DefaultConfig() Config {
	return Config{
		Seed: DefaultSeedConfig(),
		Fit:  DefaultFitSettings(),
	}
}

// Reconstructor runs the full pipeline for one event at a time:
// collapse, partition, seed, join, track fit, vertex fit. It holds only
// read-only geometry and tuning, so one Reconstructor may serve
// concurrent events; each call's working data is private to the call.
type Reconstructor struct {
	geometry Geometry
	config   Config
}

// NewReconstructor builds a Reconstructor over the given geometry.
func NewReconstructor(geo Geometry, config Config) *Reconstructor {
	return &Reconstructor{geometry: geo, config: config}
}

// Config returns the reconstruction tuning.
func (r *Reconstructor) Config() Config { return r.config }

// Tracks reconstructs the event's tracks: seeds are generated, joined
// into longer candidates, and each candidate fit into a track.
func (r *Reconstructor) Tracks(event Event) []*Track {
	seeds := Seed(event, r.config.Seed)
	if len(seeds) == 0 {
		return nil
	}
	joined := JoinAll(seeds)
	monitoring.Logf("tracker: %d seeds joined into %d candidates", len(seeds), len(joined))
	return FitSeeds(joined, r.config.Fit, r.geometry)
}

// Reconstruct runs the full pipeline and additionally fits a vertex
// over the reconstructed tracks, pruning high chi-squared tracks when
// configured. The vertex is default-initialized when fewer than two
// tracks converge.
func (r *Reconstructor) Reconstruct(event Event) ([]*Track, *Vertex) {
	tracks := r.Tracks(event)

	converged := make([]*Track, 0, len(tracks))
	for _, track := range tracks {
		if track.Converged() {
			converged = append(converged, track)
		}
	}

	vertex := NewVertexWithSettings(converged, r.config.Fit)
	if r.config.MaxVertexChiSquared > 0 && !vertex.FitDiverged() {
		vertex.PruneOnChiSquared(r.config.MaxVertexChiSquared)
	}
	return tracks, vertex
}
