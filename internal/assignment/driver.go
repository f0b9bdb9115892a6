// Package assignment implements the outer driver loop: alternating
// full and incremental pathfinding passes, an inner simulation loop
// that scores, chooses and capacity-enforces paths until stable, MSA
// smoothing of vehicle loads across outer iterations, and
// per-iteration capacity gap telemetry.
package assignment

import (
	"context"
	"log"
	"math/rand"

	"github.com/transitworks/tripassign/internal/capacity"
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/pathset"
	"github.com/transitworks/tripassign/internal/scorer"
	"github.com/transitworks/tripassign/internal/supply"
	"github.com/transitworks/tripassign/internal/txerr"
	"github.com/transitworks/tripassign/internal/vehicleloader"
	"github.com/transitworks/tripassign/internal/workerpool"
)

// IterationSummary is the capacity-gap telemetry reported once per
// outer iteration.
type IterationSummary struct {
	Iteration      int
	RequestsSearched int
	Assigned       int
	Arrived        int
	CapacityGapPct float64
	Bumped         int
}

// RunSummary is what Run returns: per-iteration telemetry plus the
// final retained pathsets and vehicle load profiles.
type RunSummary struct {
	Iterations []IterationSummary
	PathSets   []model.PathSet
	Profiles   []model.VehicleLoadProfile
}

// Driver owns one assignment run against store, scoring with registry
// and searching through pool.
type Driver struct {
	store    *supply.Store
	registry *scorer.Registry
	pool     *workerpool.Pool
	cfg      Config
}

// NewDriver returns a Driver. pool may be nil, in which case NewDriver
// builds a default-sized one from cfg.NumberOfProcesses.
func NewDriver(store *supply.Store, registry *scorer.Registry, pool *workerpool.Pool, cfg Config) *Driver {
	if pool == nil {
		pool = workerpool.New(cfg.NumberOfProcesses)
	}
	return &Driver{store: store, registry: registry, pool: pool, cfg: cfg}
}

// Run executes cfg.Iterations outer iterations over requests: odd
// iterations pathfind for every request, even iterations pathfind only
// for requests without a chosen path yet, merging new paths into the
// ones already retained. Each outer iteration
// then runs an inner simulation loop (score, choose, enforce capacity)
// until a pass bumps nobody or cfg.MaxSimulationIters is reached.
func (d *Driver) Run(ctx context.Context, requests []*model.Request) (*RunSummary, error) {
	bumpReg := capacity.NewBumpWaitRegistry()
	retained := make(map[string]*model.PathSet, len(requests))
	summary := &RunSummary{}

	for iter := 1; iter <= d.cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return summary, txerr.ErrInterrupted
		default:
		}

		toSearch := d.selectSearchSet(iter, requests, retained)

		snap := d.store.Snapshot()
		if d.cfg.PathfindingType == FromFile {
			// file mode reads the whole assignment's pathsets once; later
			// iterations re-simulate and re-choose over the same sets.
			if iter == 1 {
				loaded, err := pathset.ReadRecords(d.cfg.PathsFile, d.cfg.PathLinksFile, requests)
				if err != nil {
					return summary, err
				}
				for i := range loaded {
					ps := loaded[i]
					retained[ps.Request.RequestID] = &ps
				}
			}
			toSearch = nil
		} else {
			poolCfg := workerpool.Config{
				Stochastic:  d.cfg.PathfindingType == Stochastic,
				OuterIter:   iter,
				PathsetCfg:  d.cfg.pathsetConfig(),
				CostWeights: d.cfg.CostWeights,
			}
			results, err := d.pool.Run(ctx, snap, toSearch, poolCfg)
			if err != nil {
				return summary, err
			}
			d.mergeResults(retained, results)
		}

		rng := rand.New(rand.NewSource(int64(iter)*7919 + 11))
		for _, r := range requests {
			ps, ok := retained[r.RequestID]
			if !ok || ps.NoPath || len(ps.Paths) == 0 {
				continue
			}
			if hasChosen(ps) {
				// a path chosen in a previous iteration survives until
				// capacity enforcement bumps it.
				continue
			}
			fn, ok := d.registry.Lookup(userClassName(r, d.cfg))
			if !ok {
				fn = scorer.DefaultUserClassWeights
			}
			if err := scorer.Score(ps, fn, d.cfg.scorerConfig()); err != nil {
				return summary, err
			}
			if d.cfg.CapacityConstraint {
				scorer.Choose(ps, rng, iter, 0)
			} else {
				scorer.ArgmaxChoose(ps, iter, 0)
			}
		}

		ordered, pathsetsSlice := orderedPathsets(requests, retained)
		simulatePathsets(snap, pathsetsSlice)

		bumped := 0
		var profiles []model.VehicleLoadProfile
		if d.cfg.Simulation && d.cfg.CapacityConstraint {
			for simIter := 0; simIter < d.cfg.MaxSimulationIters; simIter++ {
				var didBump bool
				profiles, didBump = capacity.EnforceOnce(snap, pathsetsSlice, bumpReg, d.cfg.BumpOneAtATime, iter)
				if !didBump {
					break
				}
				bumped++
				rechooseBumped(pathsetsSlice, rng, iter, simIter+1, d.cfg)
				simulatePathsets(snap, pathsetsSlice)
			}
		} else {
			profiles = vehicleloader.Load(snap, pathsetsSlice)
		}

		for i, id := range ordered {
			*retained[id] = pathsetsSlice[i]
		}

		keys, times := bumpReg.Keys()
		if err := d.store.SetBumpWait(keys, times); err != nil {
			return summary, err
		}

		prevIndex := vehicleloader.Index(summary.Profiles)
		vehicleloader.MSA(profiles, prevIndex, iter)
		summary.Profiles = profiles

		assigned, arrived := countAssignedArrived(pathsetsSlice)
		gap := 0.0
		if assigned > 0 {
			gap = 100 * float64(assigned-arrived) / float64(assigned)
		}
		summary.Iterations = append(summary.Iterations, IterationSummary{
			Iteration:        iter,
			RequestsSearched: len(toSearch),
			Assigned:         assigned,
			Arrived:          arrived,
			CapacityGapPct:   gap,
			Bumped:           bumped,
		})
	}

	summary.PathSets = make([]model.PathSet, 0, len(retained))
	for _, r := range requests {
		if ps, ok := retained[r.RequestID]; ok {
			summary.PathSets = append(summary.PathSets, *ps)
		}
	}
	return summary, nil
}

// selectSearchSet implements the odd/even alternation: odd
// outer iterations search every request; even iterations search only
// requests that do not yet have a chosen, unbumped path.
func (d *Driver) selectSearchSet(iter int, requests []*model.Request, retained map[string]*model.PathSet) []*model.Request {
	if iter%2 == 1 {
		return requests
	}
	var out []*model.Request
	for _, r := range requests {
		ps, ok := retained[r.RequestID]
		if !ok || ps.NoPath || !hasChosen(ps) {
			out = append(out, r)
		}
	}
	return out
}

// mergeResults folds worker results into the retained pathsets: a
// request searched for the first time (or whose retained set is
// NoPath) replaces its entry outright; a re-searched request (even
// iteration) has its new paths appended to the
// ones already retained, so previously chosen paths survive.
func (d *Driver) mergeResults(retained map[string]*model.PathSet, results []workerpool.Result) {
	for _, res := range results {
		if res.Status == workerpool.Exception {
			log.Printf("worker %d crashed on request %s: %v", res.WorkerID, res.RequestID, res.Err)
			continue
		}
		incoming := res.PathSet
		existing, ok := retained[res.RequestID]
		if !ok || existing.NoPath {
			psCopy := incoming
			retained[res.RequestID] = &psCopy
			continue
		}
		existing.Paths = append(existing.Paths, incoming.Paths...)
		existing.NoPath = existing.NoPath && incoming.NoPath
	}
}

func hasChosen(ps *model.PathSet) bool {
	for _, p := range ps.Paths {
		if p.Chosen.IsChosen() {
			return true
		}
	}
	return false
}

// orderedPathsets returns a stable-ordered list of request ids alongside
// a parallel []model.PathSet slice suitable for capacity.EnforceOnce,
// whose mutations to Paths elements are visible through the shared
// backing array of each entry's Paths slice.
func orderedPathsets(requests []*model.Request, retained map[string]*model.PathSet) ([]string, []model.PathSet) {
	ids := make([]string, 0, len(requests))
	out := make([]model.PathSet, 0, len(requests))
	for _, r := range requests {
		ps, ok := retained[r.RequestID]
		if !ok || ps.NoPath || len(ps.Paths) == 0 {
			continue
		}
		ids = append(ids, r.RequestID)
		out = append(out, *ps)
	}
	return ids, out
}

// rechooseBumped re-runs choice for every pathset left without a
// chosen path after a capacity enforcement pass, tagging the new choice
// with the simulation sub-iteration it happened at.
func rechooseBumped(pathsets []model.PathSet, rng *rand.Rand, iter, sub int, cfg Config) {
	for i := range pathsets {
		ps := &pathsets[i]
		if hasChosen(ps) {
			continue
		}
		if cfg.CapacityConstraint {
			scorer.Choose(ps, rng, iter, sub)
		} else {
			scorer.ArgmaxChoose(ps, iter, sub)
		}
	}
}

// countAssignedArrived counts per request: assigned means a path was
// chosen for it at some point this run (including choices later bumped
// away), arrived means its currently chosen path actually reaches the
// destination.
func countAssignedArrived(pathsets []model.PathSet) (assigned, arrived int) {
	for _, ps := range pathsets {
		wasAssigned := false
		didArrive := false
		for i := range ps.Paths {
			p := &ps.Paths[i]
			if p.Chosen.IsChosen() || p.BumpedIter > 0 {
				wasAssigned = true
			}
			if p.Chosen.IsChosen() && arrives(p) {
				didArrive = true
			}
		}
		if wasAssigned {
			assigned++
		}
		if didArrive {
			arrived++
		}
	}
	return assigned, arrived
}

func userClassName(r *model.Request, cfg Config) string {
	if r.UserClass != "" {
		return r.UserClass
	}
	return cfg.UserClassFunction
}
