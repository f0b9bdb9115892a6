// Package pathset turns a label table into a set of candidate paths:
// a deterministic single-path walk for TBSP, and probabilistic forward
// sampling with deduplication and multiplicity counts for TBHP.
package pathset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/transitworks/tripassign/internal/labelengine"
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/supply"
)

// Config holds the enumeration-time limits.
type Config struct {
	StochPathsetSize  int
	MaxNumPaths       int // -1 = unbounded
	MinPathProbability float64
	Dispersion        float64
}

// Enumerate walks res (the Label Engine's output for req) into a
// model.PathSet, using cfg and, for TBHP, rng for the probabilistic
// forward walk.
func Enumerate(snap *supply.Snapshot, req *model.Request, res *labelengine.Result, cfg Config, rng *rand.Rand) model.PathSet {
	if !res.OriginFound {
		return model.PathSet{Request: req, NoPath: true}
	}

	if !res.Stochastic {
		path, ok := walkOne(snap, req, res, pickBest)
		if !ok {
			return model.PathSet{Request: req, NoPath: true}
		}
		path.Probability = 1.0
		path.PathSize = 1.0
		return model.PathSet{Request: req, Paths: []model.Path{path}}
	}

	theta := cfg.Dispersion
	if theta <= 0 {
		theta = 1.0
	}
	size := cfg.StochPathsetSize
	if size <= 0 {
		size = 1
	}

	type draw struct {
		key  string
		path model.Path
		n    int
	}
	byKey := make(map[string]*draw)
	order := make([]string, 0, size)

	for i := 0; i < size; i++ {
		path, ok := walkOne(snap, req, res, weightedPicker(rng, theta))
		if !ok {
			continue
		}
		key := pathKey(path)
		if d, exists := byKey[key]; exists {
			d.n++
			continue
		}
		d := &draw{key: key, path: path, n: 1}
		byKey[key] = d
		order = append(order, key)
	}

	if len(order) == 0 {
		return model.PathSet{Request: req, NoPath: true}
	}

	total := 0
	for _, k := range order {
		total += byKey[k].n
	}

	paths := make([]model.Path, 0, len(order))
	for _, k := range order {
		d := byKey[k]
		d.path.Multiplicity = d.n
		d.path.Probability = float64(d.n) / float64(total)
		paths = append(paths, d.path)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].Probability > paths[j].Probability })

	filtered := make([]model.Path, 0, len(paths))
	for _, p := range paths {
		if p.Probability < cfg.MinPathProbability {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) == 0 {
		return model.PathSet{Request: req, NoPath: true}
	}
	if cfg.MaxNumPaths > 0 && len(filtered) > cfg.MaxNumPaths {
		filtered = filtered[:cfg.MaxNumPaths]
	}

	return model.PathSet{Request: req, Paths: filtered}
}

func pathKey(p model.Path) string {
	var b strings.Builder
	for _, l := range p.Links {
		fmt.Fprintf(&b, "%d:%d:%d:%d|", l.Mode, l.AStop, l.BStop, l.TripID)
	}
	return b.String()
}

// pick selects one label from a stop's non-empty label set.
type pick func(labels []model.Label) model.Label

func pickBest(labels []model.Label) model.Label {
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Cost < best.Cost {
			best = l
		}
	}
	return best
}

// weightedPicker draws a label with probability proportional to
// exp(-theta*cost).
func weightedPicker(rng *rand.Rand, theta float64) pick {
	return func(labels []model.Label) model.Label {
		if len(labels) == 1 {
			return labels[0]
		}
		min := labels[0].Cost
		for _, l := range labels[1:] {
			if l.Cost < min {
				min = l.Cost
			}
		}
		weights := make([]float64, len(labels))
		total := 0.0
		for i, l := range labels {
			w := math.Exp(-theta * (l.Cost - min))
			weights[i] = w
			total += w
		}
		r := rng.Float64() * total
		acc := 0.0
		for i, w := range weights {
			acc += w
			if r <= acc {
				return labels[i]
			}
		}
		return labels[len(labels)-1]
	}
}

// walkOne reconstructs one path from the label table, choosing a label
// at each branch point via choose.
func walkOne(snap *supply.Snapshot, req *model.Request, res *labelengine.Result, choose pick) (model.Path, bool) {
	var links []model.PathLink
	var startStop model.StopID
	outbound := req.Outbound()

	if outbound {
		startStop = res.OriginStop
		ac, ok := findAccess(snap, req.OriginTAZ, startStop)
		if !ok {
			return model.Path{}, false
		}
		links = append(links, model.PathLink{
			Mode: model.ModeAccess, AStop: startStop, BStop: startStop,
			PfLinkTime: ac.TimeMin,
		})
	} else {
		startStop = res.DestStop
		eg, ok := findEgress(snap, req.DestinationTAZ, startStop)
		if !ok {
			return model.Path{}, false
		}
		links = append(links, model.PathLink{
			Mode: model.ModeEgress, AStop: startStop, BStop: startStop,
			PfLinkTime: eg.TimeMin,
		})
	}

	cur := startStop
	const maxHops = 64
	var terminalLink model.PathLink
	terminal := false
	for hop := 0; hop < maxHops; hop++ {
		labels := res.StopLabels[cur]
		if len(labels) == 0 {
			return model.Path{}, false
		}
		lbl := choose(labels)

		switch lbl.LinkMode {
		case model.ModeAccess, model.ModeEgress:
			terminalLink = model.PathLink{Mode: lbl.LinkMode, AStop: cur, BStop: cur, PfLinkTime: lbl.LinkTime}
			terminal = true
		case model.ModeGenericTransit:
			links = append(links, model.PathLink{
				Mode: model.ModeGenericTransit, AStop: cur, BStop: lbl.AdjStopID,
				TripID: lbl.TripID, ASeq: lbl.Sequence, BSeq: lbl.AdjSequence,
				PfLinkTime: lbl.LinkTime, PfWaitTime: 0,
			})
			cur = lbl.AdjStopID
		case model.ModeTransfer:
			links = append(links, model.PathLink{
				Mode: model.ModeTransfer, AStop: cur, BStop: lbl.AdjStopID,
				PfLinkTime: lbl.LinkTime,
			})
			cur = lbl.AdjStopID
		default:
			return model.Path{}, false
		}
		if terminal {
			break
		}
	}
	if !terminal {
		return model.Path{}, false
	}
	links = append(links, terminalLink)

	if !outbound {
		// the forward-labeled table was walked destination-to-origin, so
		// the link order and each link's A/B orientation both reverse.
		for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
			links[i], links[j] = links[j], links[i]
		}
		for i := range links {
			l := &links[i]
			l.AStop, l.BStop = l.BStop, l.AStop
			l.ASeq, l.BSeq = l.BSeq, l.ASeq
		}
	}

	FillScheduleTimes(snap, req, links)

	cost := 0.0
	for _, l := range links {
		cost += l.PfLinkTime + l.PfWaitTime
	}
	return model.Path{Links: links, Cost: cost, Chosen: model.NotChosenYet}, true
}

// FillScheduleTimes writes the pathfinding-time fields (PfATime,
// PfBTime, PfLinkTime, PfWaitTime) onto links by walking them forward
// against the schedule in snap. Inbound requests anchor the walk at the
// preferred departure time; outbound requests are anchored at the first
// boarding's scheduled departure, so access arrives with zero slack.
func FillScheduleTimes(snap *supply.Snapshot, req *model.Request, links []model.PathLink) {
	pre := 0.0
	firstDep := math.NaN()
	for _, l := range links {
		if l.Mode == model.ModeGenericTransit || l.Mode >= 0 {
			firstDep = departureAt(snap, l.TripID, l.ASeq)
			break
		}
		pre += l.PfLinkTime
	}

	clock := req.PreferredTimeMin
	if req.Outbound() && !math.IsNaN(firstDep) {
		clock = firstDep - pre
	}

	for i := range links {
		l := &links[i]
		if l.Mode == model.ModeGenericTransit || l.Mode >= 0 {
			dep := departureAt(snap, l.TripID, l.ASeq)
			arr := arrivalAt(snap, l.TripID, l.BSeq)
			l.PfATime = clock
			l.PfWaitTime = dep - clock
			l.PfBTime = arr
			l.PfLinkTime = arr - dep
			clock = arr
			continue
		}
		l.PfATime = clock
		l.PfWaitTime = 0
		clock += l.PfLinkTime
		l.PfBTime = clock
	}
}

func departureAt(snap *supply.Snapshot, trip model.TripID, seq int) float64 {
	for _, st := range snap.TripStopTimes(trip) {
		if st.Sequence == seq {
			return st.DepartureMin
		}
	}
	return math.NaN()
}

func arrivalAt(snap *supply.Snapshot, trip model.TripID, seq int) float64 {
	for _, st := range snap.TripStopTimes(trip) {
		if st.Sequence == seq {
			return st.ArrivalMin
		}
	}
	return math.NaN()
}

func findAccess(snap *supply.Snapshot, taz model.TAZID, stop model.StopID) (model.AccessEdge, bool) {
	for _, e := range snap.Access(taz) {
		if e.Stop == stop {
			return e, true
		}
	}
	return model.AccessEdge{}, false
}

func findEgress(snap *supply.Snapshot, taz model.TAZID, stop model.StopID) (model.EgressEdge, bool) {
	for _, e := range snap.Egress(taz) {
		if e.Stop == stop {
			return e, true
		}
	}
	return model.EgressEdge{}, false
}
