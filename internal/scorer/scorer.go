// Package scorer computes link and path generalized cost via a
// user-class weight table, applies the path-size overlap correction,
// converts costs to logit probabilities and draws each request's chosen
// path.
package scorer

import (
	"math"
	"math/rand"
	"sort"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// OverlapVariable selects what a shared link "amount" t_l is measured
// in for the path-size term.
type OverlapVariable int

const (
	OverlapCount OverlapVariable = iota
	OverlapDistance
	OverlapTime
)

// Config holds the scoring-time parameters.
type Config struct {
	Dispersion          float64
	MinTransferPenalty  float64
	OverlapScale        float64
	OverlapSplitTransit bool
	OverlapVariable     OverlapVariable
}

// Score computes link and path cost for every path in ps using fn,
// applies the path-size overlap correction and computes logit
// probabilities, writing Cost, PathSize and Probability onto ps's paths
// in place; the only return value is an error. It does not mutate ps's
// Chosen status; call Choose for that.
func Score(ps *model.PathSet, fn Func, cfg Config) error {
	if fn == nil {
		return txerr.Configuration("scorer: nil user-class function", nil)
	}
	if len(ps.Paths) == 0 {
		return nil
	}

	for i := range ps.Paths {
		ps.Paths[i].Cost = pathCost(ps.Request, &ps.Paths[i], fn, cfg)
	}

	pathSizes := pathSize(ps.Paths, cfg)
	for i := range ps.Paths {
		ps.Paths[i].PathSize = pathSizes[i]
	}

	logit(ps.Paths, cfg.Dispersion, cfg.OverlapScale)
	return nil
}

// pathCost sums weighted link attributes over p's links. The wait on a
// transfer link is floored at MinTransferPenalty; the wait on any other
// link, including a transit link's negative wait, is used as recorded.
func pathCost(req *model.Request, p *model.Path, fn Func, cfg Config) float64 {
	total := 0.0
	for _, l := range p.Links {
		w := fn(req, l)
		wait := l.PfWaitTime
		if l.Mode == model.ModeTransfer {
			if wait < cfg.MinTransferPenalty {
				wait = cfg.MinTransferPenalty
			}
			total += w.TransferCount
		}
		total += w.InVehicleMin*ivtMinutes(l) + w.WaitMin*wait
		switch l.Mode {
		case model.ModeAccess:
			total += w.WalkAccessMin * l.PfLinkTime
		case model.ModeEgress:
			total += w.WalkEgressMin * l.PfLinkTime
		case model.ModeTransfer:
			total += w.TransferMin * l.PfLinkTime
		}
		total += w.Fare
	}
	return total
}

func ivtMinutes(l model.PathLink) float64 {
	if l.Mode == model.ModeGenericTransit || l.Mode >= 0 {
		return l.PfLinkTime
	}
	return 0
}

// pathSize computes PS_i for every path in paths:
// PS_i = sum over links l of (t_l / T_i) * 1/N_l, where N_l is the
// number of pathset paths using l. Link identity for overlap purposes is
// (trip_id, A_stop, B_stop) for a whole transit link, or each
// per-sequence segment of it when OverlapSplitTransit is set; walk and
// access links never count as shared.
func pathSize(paths []model.Path, cfg Config) []float64 {
	type linkKey struct {
		tripID model.TripID
		a, b   int
	}
	amount := func(l model.PathLink) float64 {
		switch cfg.OverlapVariable {
		case OverlapTime:
			return l.PfLinkTime
		case OverlapDistance:
			return l.PfLinkTime // distance not separately tracked on PathLink; time is its proxy
		default:
			return 1.0
		}
	}

	isTransit := func(l model.PathLink) bool {
		return l.Mode == model.ModeGenericTransit || l.Mode >= 0
	}

	// keysOf expands one transit link into its overlap keys and the
	// amount attributed to each.
	keysOf := func(l model.PathLink) ([]linkKey, float64) {
		if !isTransit(l) {
			return nil, 0
		}
		if !cfg.OverlapSplitTransit {
			return []linkKey{{tripID: l.TripID, a: int(l.AStop), b: int(l.BStop)}}, amount(l)
		}
		if l.BSeq <= l.ASeq {
			return []linkKey{{tripID: l.TripID, a: l.ASeq, b: l.BSeq}}, amount(l)
		}
		segs := make([]linkKey, 0, l.BSeq-l.ASeq)
		for s := l.ASeq; s < l.BSeq; s++ {
			segs = append(segs, linkKey{tripID: l.TripID, a: s, b: s + 1})
		}
		return segs, amount(l) / float64(len(segs))
	}

	usage := make(map[linkKey]int)
	for _, p := range paths {
		for _, l := range p.Links {
			keys, _ := keysOf(l)
			for _, k := range keys {
				usage[k]++
			}
		}
	}

	out := make([]float64, len(paths))
	for i, p := range paths {
		totalLen := 0.0
		for _, l := range p.Links {
			totalLen += amount(l)
		}
		if totalLen == 0 {
			out[i] = 1.0
			continue
		}
		ps := 0.0
		for _, l := range p.Links {
			keys, amt := keysOf(l)
			if len(keys) == 0 {
				ps += amount(l) / totalLen
				continue
			}
			for _, k := range keys {
				ps += (amt / totalLen) / float64(usage[k])
			}
		}
		if ps <= 0 {
			ps = 1.0
		}
		if ps > 1.0 {
			ps = 1.0
		}
		out[i] = ps
	}
	return out
}

// logit assigns Probability to every path in paths:
// P_i = exp(-theta*c_i + scale*ln PS_i) / sum_j over the same, where
// scale is the overlap scale parameter. As theta -> +Inf this collapses
// to a deterministic argmin.
func logit(paths []model.Path, theta, overlapScale float64) {
	if theta <= 0 {
		theta = 1.0
	}
	utility := make([]float64, len(paths))
	for i, p := range paths {
		utility[i] = -theta*p.Cost + overlapScale*math.Log(math.Max(p.PathSize, 1e-12))
	}
	maxU := utility[0]
	for _, u := range utility[1:] {
		if u > maxU {
			maxU = u
		}
	}
	sum := 0.0
	exps := make([]float64, len(paths))
	for i, u := range utility {
		e := math.Exp(u - maxU)
		exps[i] = e
		sum += e
	}
	for i := range paths {
		if sum == 0 {
			paths[i].Probability = 1.0 / float64(len(paths))
			continue
		}
		paths[i].Probability = exps[i] / sum
	}
}

// Choose draws a path per its logit probability and marks it chosen at
// (iter, sub). Rejected (bumped) paths are never re-drawn; their
// probability mass is renormalized over the eligible remainder.
// Unchosen paths are left as-is; they stay retained for potential
// re-choice. Choice is deterministic given an identical rng stream.
func Choose(ps *model.PathSet, rng *rand.Rand, iter, sub int) {
	idx := eligible(ps)
	if len(idx) == 0 {
		return
	}
	if len(idx) == 1 {
		ps.Paths[idx[0]].Chosen = model.Chosen(iter, sub)
		return
	}
	sort.SliceStable(idx, func(a, b int) bool { return ps.Paths[idx[a]].Probability > ps.Paths[idx[b]].Probability })

	total := 0.0
	for _, i := range idx {
		total += ps.Paths[i].Probability
	}
	r := rng.Float64() * total
	acc := 0.0
	chosen := idx[len(idx)-1]
	for _, i := range idx {
		acc += ps.Paths[i].Probability
		if r <= acc {
			chosen = i
			break
		}
	}
	ps.Paths[chosen].Chosen = model.Chosen(iter, sub)
}

// ArgmaxChoose deterministically picks the highest-probability eligible
// path, used when the capacity constraint is off and choice reduces to
// the argmax of -c_i + ln PS_i.
func ArgmaxChoose(ps *model.PathSet, iter, sub int) {
	idx := eligible(ps)
	if len(idx) == 0 {
		return
	}
	best := idx[0]
	for _, i := range idx[1:] {
		if ps.Paths[i].Probability > ps.Paths[best].Probability {
			best = i
		}
	}
	ps.Paths[best].Chosen = model.Chosen(iter, sub)
}

func eligible(ps *model.PathSet) []int {
	idx := make([]int, 0, len(ps.Paths))
	for i, p := range ps.Paths {
		if p.Chosen == model.Rejected {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}
