package assignment

import "github.com/transitworks/tripassign/internal/model"

// FilterRequests applies the request-selection options of the outer
// configuration surface: skip_person_ids drops requests outright,
// trace_person_ids marks requests for verbose output, debug_trace_only
// restricts the run to traced requests, and debug_num_trips truncates
// the list (-1 = all). The input slice is not modified.
func FilterRequests(cfg Config, requests []*model.Request) []*model.Request {
	skip := make(map[string]bool, len(cfg.SkipPersonIDs))
	for _, id := range cfg.SkipPersonIDs {
		skip[id] = true
	}
	trace := make(map[string]bool, len(cfg.TracePersonIDs))
	for _, id := range cfg.TracePersonIDs {
		trace[id] = true
	}

	out := make([]*model.Request, 0, len(requests))
	for _, r := range requests {
		if skip[r.PersonID] {
			continue
		}
		if trace[r.PersonID] {
			r.Trace = true
		}
		if cfg.DebugTraceOnly && !r.Trace {
			continue
		}
		out = append(out, r)
		if cfg.DebugNumTrips >= 0 && len(out) >= cfg.DebugNumTrips {
			break
		}
	}
	return out
}
