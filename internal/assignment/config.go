package assignment

import (
	"github.com/transitworks/tripassign/internal/labelengine"
	"github.com/transitworks/tripassign/internal/pathset"
	"github.com/transitworks/tripassign/internal/scorer"
)

// PathfindingType selects the label engine's search mode, or reads a
// previously written pathset back from disk.
type PathfindingType int

const (
	Deterministic PathfindingType = iota
	Stochastic
	FromFile
)

// Config is the immutable assignment configuration threaded into the
// label engine, scorer and driver; workers receive a copy at spawn.
type Config struct {
	// Outer loop.
	Iterations             int
	Simulation              bool
	PathfindingType         PathfindingType
	NumberOfProcesses       int
	BumpBufferMin           float64
	BumpOneAtATime          bool
	CapacityConstraint      bool
	DebugTraceOnly          bool
	DebugNumTrips           int
	TracePersonIDs          []string
	SkipPersonIDs           []string
	PrependRouteIDToTripID  bool

	// Pathfinding.
	TimeWindowMin            float64
	MaxNumPaths              int
	MinPathProbability       float64
	StochasticDispersion     float64
	StochasticMaxStopProcess int
	StochasticPathsetSize    int
	UserClassFunction        string
	MinTransferPenalty       float64
	OverlapScaleParameter    float64
	OverlapSplitTransit      bool
	OverlapVariable          scorer.OverlapVariable

	// PathsFile / PathLinksFile feed PathfindingType == FromFile: a
	// pathset written by a previous run, read back instead of searching.
	PathsFile     string
	PathLinksFile string

	// MaxSimulationIters bounds the inner simulation loop.
	MaxSimulationIters int

	CostWeights labelengine.CostWeights
}

// DefaultConfig is a usable, conservative default.
func DefaultConfig() Config {
	return Config{
		Iterations:               5,
		Simulation:               true,
		PathfindingType:          Stochastic,
		NumberOfProcesses:        0,
		BumpBufferMin:            5,
		BumpOneAtATime:           true,
		CapacityConstraint:       true,
		DebugNumTrips:            -1,
		TimeWindowMin:            30,
		MaxNumPaths:              -1,
		MinPathProbability:       0.001,
		StochasticDispersion:     1.0,
		StochasticMaxStopProcess: -1,
		StochasticPathsetSize:    20,
		UserClassFunction:        "default",
		MinTransferPenalty:       1.0,
		OverlapScaleParameter:    1.0,
		OverlapVariable:          scorer.OverlapCount,
		MaxSimulationIters:       10,
		CostWeights:              labelengine.DefaultCostWeights,
	}
}

func (c Config) pathsetConfig() pathset.Config {
	return pathset.Config{
		StochPathsetSize:   c.StochasticPathsetSize,
		MaxNumPaths:        c.MaxNumPaths,
		MinPathProbability: c.MinPathProbability,
		Dispersion:         c.StochasticDispersion,
	}
}

func (c Config) scorerConfig() scorer.Config {
	return scorer.Config{
		Dispersion:          c.StochasticDispersion,
		MinTransferPenalty:  c.MinTransferPenalty,
		OverlapScale:        c.OverlapScaleParameter,
		OverlapSplitTransit: c.OverlapSplitTransit,
		OverlapVariable:     c.OverlapVariable,
	}
}
