// Package model holds the data entities of the assignment loop: the
// schedule side (Stop, Trip, StopTime, TransferEdge, AccessEdge,
// EgressEdge) and the demand side (Request, Label, Path, PathLink,
// PathSet, VehicleLoadProfile). All entities are plain structs, laid out
// as struct-of-arrays where the Supply Store holds bulk data, and as
// single values where the Driver holds per-request state. None of these
// types own pointers into each other; relationships are small integer
// ids, joined by the owning package.
package model

// Direction is the travel direction of a Request, and therefore the
// search direction the Label Engine runs in: outbound searches backward
// from the destination, inbound searches forward from the origin.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "INBOUND"
	}
	return "OUTBOUND"
}

// StopID is a dense, small integer id assigned by the Supply Store at
// load time.
type StopID int

// TripID is a dense, small integer id assigned by the Supply Store at
// load time.
type TripID int

// TAZID identifies a traffic analysis zone, an origin/destination anchor
// connected to the stop graph via AccessEdge/EgressEdge.
type TAZID int

// Mode codes for PathLink.Mode, matching the external interface's
// negative sentinel scheme plus positive transit-mode ids.
const (
	ModeAccess         = -100
	ModeEgress         = -101
	ModeTransfer       = -102
	ModeGenericTransit = -103
)

// Stop is a transit stop. Adjacency into the time-expanded trip graph is
// held by the Supply Store's side indices, not here.
type Stop struct {
	ID   StopID
	Name string
	Lat  float64
	Lon  float64
}

// StopTime is one scheduled visit of a Trip at a Stop.
type StopTime struct {
	TripID      TripID
	Sequence    int
	StopID      StopID
	ArrivalMin  float64
	DepartureMin float64
	// Overcap is the overcap column provided by InitializeSupply, if any;
	// 0 when absent.
	Overcap float64
}

// Trip is an ordered sequence of StopTimes. Capacity is a pointer so its
// absence (unbounded vehicle) is representable without a sentinel value.
type Trip struct {
	ID        TripID
	RouteID   string
	ServiceID string
	Capacity  *int
}

// AccessEdge connects a request's origin TAZ to a Stop: the walk that
// starts every path, outbound or inbound.
type AccessEdge struct {
	TAZ       TAZID
	Stop      StopID
	TimeMin   float64
	Cost      float64
}

// EgressEdge connects a Stop to a TAZ, mirroring AccessEdge.
type EgressEdge struct {
	Stop      StopID
	TAZ       TAZID
	TimeMin   float64
	Cost      float64
}

// TransferEdge is a walking connection between two stops.
type TransferEdge struct {
	FromStop StopID
	ToStop   StopID
	TimeMin  float64
	DistKm   float64
	Cost     float64
}

// Request is one passenger travel request ("trip list entry").
type Request struct {
	PersonID         string
	RequestID        string
	OriginTAZ        TAZID
	DestinationTAZ   TAZID
	Direction        Direction
	PreferredTimeMin float64
	UserClass        string
	Purpose          string
	AccessMode       string
	TransitMode      string
	EgressMode       string
	VOT              float64
	// Trace marks this request for verbose per-person debug output,
	// mirroring debug_trace_only / trace_person_ids in the configuration
	// surface.
	Trace bool
}

// Outbound reports whether this request searches backward from the
// destination. It is derived from Direction, never an independently
// settable flag, so the two can never disagree.
func (r *Request) Outbound() bool { return r.Direction == Outbound }

// Label is a single state entry produced by the Label Engine at a stop.
// Under TBSP a stop holds exactly one Label (the lowest-cost state).
// Under TBHP a stop holds a set of non-dominated Labels.
type Label struct {
	Cost        float64
	TimeMin     float64
	LinkMode    int
	TripID      TripID
	// Sequence is this label's own stop's sequence within TripID, when
	// LinkMode == ModeGenericTransit.
	Sequence    int
	AdjStopID   StopID
	AdjSequence int
	LinkTime    float64
	LinkCost    float64
	ArrivalTime float64
	// MissedXfer marks a label reached via a transfer whose wait time
	// went negative before correction.
	MissedXfer bool
	// BumpedIter is the outer iteration at which a path through this
	// label was bumped, or 0 if never bumped.
	BumpedIter int
}

// PathLink is one leg of a Path: access, trip, transfer, trip, ..., egress.
type PathLink struct {
	Mode        int
	AStop       StopID
	BStop       StopID
	TripID      TripID
	ASeq        int
	BSeq        int
	PfATime     float64
	PfBTime     float64
	PfLinkTime  float64
	PfWaitTime  float64
	// Realized fields, filled in by the simulation pass against the
	// actual schedule. ATime is when the passenger reaches AStop ready
	// to board; BoardTime is the vehicle departure actually boarded.
	ATime       float64
	BoardTime   float64
	AlightTime  float64
	WaitTime    float64
	MissedXfer  bool
	OvercapFlag bool
}

// Path is an ordered sequence of PathLinks plus the scoring/choice
// attributes attached by the Scorer & Chooser.
type Path struct {
	Links       []PathLink
	Cost        float64
	Probability float64
	PathSize    float64
	Chosen      ChosenStatus
	// Multiplicity is the number of times this path was drawn during
	// TBHP stochastic enumeration before deduplication.
	Multiplicity int
	// BumpedIter is the bump-iteration index at which this path lost a
	// boarding to capacity enforcement, 0 if never bumped.
	BumpedIter int
}

// PathSet is the set of Paths found for one Request. All paths in a
// PathSet share (OriginTAZ, DestinationTAZ, UserClass, PreferredTimeMin,
// Direction).
type PathSet struct {
	Request *Request
	Paths   []Path
	// NoPath is set when the Label Engine could not reach the origin
	// (outbound) or destination (inbound). Paths is empty in that case.
	NoPath bool
}

// VehicleLoadProfile is the per (trip_id, sequence) aggregate produced
// by the Vehicle Loader, including MSA-smoothed variants.
type VehicleLoadProfile struct {
	TripID        TripID
	Sequence      int
	StopID        StopID
	RouteID       string
	ServiceID     string
	ArrivalTime   float64
	DepartureTime float64
	TravelTimeSec float64
	DwellTimeSec  float64
	Capacity      *int
	Boards        int
	Alights       int
	Onboard       int
	Standees      int
	Friction      float64
	Overcap       int
	MSABoards     float64
	MSAAlights    float64
	MSAOnboard    float64
	MSAStandees   float64
	MSAFriction   float64
	MSAOvercap    float64
}

// BumpWaitKey identifies one entry in the BumpWait registry.
type BumpWaitKey struct {
	TripID   TripID
	Sequence int
	StopID   StopID
}
