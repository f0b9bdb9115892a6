// Package workerpool parallelizes per-request path search over an
// immutable supply snapshot: a work queue feeding worker goroutines
// and a result queue carrying (worker_id, status, request_id, result,
// perf_counters) back to the driver.
package workerpool

import (
	"context"
	"hash/fnv"
	"math/rand"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/transitworks/tripassign/internal/labelengine"
	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/pathset"
	"github.com/transitworks/tripassign/internal/supply"
	"github.com/transitworks/tripassign/internal/txerr"
)

// Status is the worker-reported lifecycle state of one request:
// Starting when a worker picks it up, Completed when its search
// finished, Exception when the search panicked or overran its
// deadline. Done is a per-worker marker sent once the worker has
// drained the work queue and exited.
type Status int

const (
	Starting Status = iota
	Completed
	Done
	Exception
)

// errSearchDeadline marks a search that overran SearchTimeout. The
// goroutine running it is abandoned, the in-flight request marked
// failed.
var errSearchDeadline = errors.New("search deadline exceeded")

// Result is one entry on the result queue.
type Result struct {
	WorkerID  int
	Status    Status
	RequestID string
	PathSet   model.PathSet
	Perf      labelengine.PerfCounters
	Err       error
}

// Config bundles the parameters every worker needs to run a search:
// which search mode, the enumeration limits, and the label engine's
// internal cost weights.
type Config struct {
	Stochastic  bool
	OuterIter   int
	PathsetCfg  pathset.Config
	CostWeights labelengine.CostWeights
}

// Pool runs request searches across Workers goroutines. Workers<=0
// defaults to runtime.NumCPU(). The pool is bypassed (single-threaded
// in-process) when Workers==1 or when there are fewer than 3x as many
// requests as workers. SearchTimeout is the liveness escape: a single
// request's search still running past it is reported as a crash and
// its goroutine abandoned, so a hung search can never block the whole
// pass. Zero means defaultSearchTimeout.
type Pool struct {
	Workers       int
	SearchTimeout time.Duration
}

const defaultSearchTimeout = 5 * time.Minute

// New returns a Pool sized to the available CPU cores when workers<=0.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{Workers: workers, SearchTimeout: defaultSearchTimeout}
}

func (p *Pool) timeout() time.Duration {
	if p.SearchTimeout <= 0 {
		return defaultSearchTimeout
	}
	return p.SearchTimeout
}

// Run searches every request in requests against snap and returns one
// terminal Result per request, keyed by RequestID; order is not
// guaranteed to match requests when the pool is active, since results
// may arrive in any order. Workers emit Starting when they pick a
// request up, Completed or Exception when it resolves, and a final
// Done marker when they exit; Run consumes the stream and hands only
// the terminal per-request results back. A panic or deadline overrun
// in a single request's search is reported as an Exception result and
// does not abort the others.
func (p *Pool) Run(ctx context.Context, snap *supply.Snapshot, requests []*model.Request, cfg Config) ([]Result, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if workers == 1 || len(requests) < 3*workers {
		return p.runInline(ctx, snap, requests, cfg, 0), nil
	}

	work := make(chan *model.Request, len(requests))
	for _, r := range requests {
		work <- r
	}
	close(work)

	// two events per request (Starting + terminal) plus one Done per
	// worker, so sends never block
	results := make(chan Result, 2*len(requests)+workers)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			defer func() { results <- Result{WorkerID: workerID, Status: Done} }()
			for {
				select {
				case <-gctx.Done():
					return txerr.ErrInterrupted
				case req, ok := <-work:
					if !ok {
						return nil
					}
					results <- Result{WorkerID: workerID, Status: Starting, RequestID: req.RequestID}
					results <- runWithDeadline(p.timeout(), workerID, req.RequestID, func() Result {
						return searchOne(snap, req, cfg, workerID)
					})
				}
			}
		})
	}

	err := g.Wait()
	close(results)

	out := make([]Result, 0, len(requests))
	for r := range results {
		switch r.Status {
		case Completed, Exception:
			out = append(out, r)
		default:
			// Starting markers are superseded by their terminal result;
			// Done just records that the worker exited cleanly.
		}
	}
	if err != nil && err != txerr.ErrInterrupted {
		return out, err
	}
	if err == txerr.ErrInterrupted {
		return out, txerr.ErrInterrupted
	}
	return out, nil
}

// runInline handles the Workers==1 / below-threshold case: a single
// in-process loop, no queue, but the same per-request deadline.
func (p *Pool) runInline(ctx context.Context, snap *supply.Snapshot, requests []*model.Request, cfg Config, workerID int) []Result {
	out := make([]Result, 0, len(requests))
	for _, req := range requests {
		select {
		case <-ctx.Done():
			return out
		default:
		}
		req := req
		out = append(out, runWithDeadline(p.timeout(), workerID, req.RequestID, func() Result {
			return searchOne(snap, req, cfg, workerID)
		}))
	}
	return out
}

// runWithDeadline runs fn in its own goroutine and waits at most
// timeout for its result. On overrun the request is marked failed and
// the goroutine abandoned; its eventual result goes to a buffered
// channel nobody reads.
func runWithDeadline(timeout time.Duration, workerID int, requestID string, fn func() Result) Result {
	done := make(chan Result, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
		return Result{WorkerID: workerID, Status: Exception, RequestID: requestID,
			Err: txerr.WorkerCrash(requestID, errSearchDeadline)}
	}
}

func searchOne(snap *supply.Snapshot, req *model.Request, cfg Config, workerID int) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{WorkerID: workerID, Status: Exception, RequestID: req.RequestID,
				Err: txerr.WorkerCrash(req.RequestID, recoverErr(r))}
		}
	}()

	rng := rand.New(rand.NewSource(seed(cfg.OuterIter, req.RequestID)))
	eng := labelengine.New(snap, cfg.CostWeights)
	lr := eng.Search(req, cfg.Stochastic, rng)
	ps := pathset.Enumerate(snap, req, lr, cfg.PathsetCfg, rng)

	return Result{
		WorkerID:  workerID,
		Status:    Completed,
		RequestID: req.RequestID,
		PathSet:   ps,
		Perf:      lr.Perf,
	}
}

func recoverErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return txerr.ErrWorkerCrash
}

// seed derives the per-request RNG seed from the outer iteration and
// the request id, never from which worker happened to pick the request
// up. That keeps a 4-worker run bit-identical to a 1-worker run on the
// same seed, which per-worker RNG streams cannot guarantee under
// dynamic work stealing.
func seed(outerIter int, requestID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(requestID))
	return int64(outerIter)*1_000_003 + int64(h.Sum64()&0x7fffffff)
}
