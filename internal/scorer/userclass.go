package scorer

import "github.com/transitworks/tripassign/internal/model"

// Weights is one user class's per-attribute cost coefficients, the row
// a user-class function selects for a given request and link.
type Weights struct {
	InVehicleMin   float64
	WaitMin        float64
	TransferMin    float64
	TransferCount  float64
	WalkAccessMin  float64
	WalkEgressMin  float64
	Fare           float64
}

// Func is a named callable taking (request, link attributes) and
// selecting a Weights row. It is
// evaluated per link, so a user class can vary its weights by link
// attributes (e.g. a different in-vehicle weight on a crowded link).
type Func func(req *model.Request, link model.PathLink) Weights

// DefaultUserClassWeights is the compiled default, always registered
// under "default".
func DefaultUserClassWeights(req *model.Request, link model.PathLink) Weights {
	return Weights{
		InVehicleMin:  1.0,
		WaitMin:       1.8,
		TransferMin:   1.5,
		TransferCount: 10.0,
		WalkAccessMin: 2.0,
		WalkEgressMin: 2.0,
		Fare:          req.VOT,
	}
}

// Registry maps user-class function names to their Func.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a Registry with DefaultUserClassWeights already
// registered under "default".
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("default", DefaultUserClassWeights)
	return r
}

// Register adds or replaces the Func for name.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup returns the Func for name, and whether it was found.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}
