package pathset

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/transitworks/tripassign/internal/model"
	"github.com/transitworks/tripassign/internal/txerr"
)

// linkRecord is the per-link pathfinding result row: the integer columns
// (path_num, stop_id, mode_code, trip_id, adj_stop_id, sequence,
// adj_sequence) and float columns (label, time_min, link_time_min,
// cost_or_label_secondary, arrival_or_departure_time_min), keyed by
// request_id so a file holds every request's pathset.
type linkRecord struct {
	RequestID   string  `csv:"request_id"`
	PathNum     int     `csv:"path_num"`
	StopID      int     `csv:"stop_id"`
	ModeCode    int     `csv:"mode_code"`
	TripID      int     `csv:"trip_id"`
	AdjStopID   int     `csv:"adj_stop_id"`
	Sequence    int     `csv:"sequence"`
	AdjSequence int     `csv:"adj_sequence"`
	Label       float64 `csv:"label"`
	TimeMin     float64 `csv:"time_min"`
	LinkTimeMin float64 `csv:"link_time_min"`
	CostOrSec   float64 `csv:"cost_or_label_secondary"`
	ArrDepMin   float64 `csv:"arrival_or_departure_time_min"`
}

// pathRecord is the per-path (cost, probability) row, plus the chosen
// ordinal so a written assignment can be inspected or resumed.
type pathRecord struct {
	RequestID    string  `csv:"request_id"`
	PathNum      int     `csv:"path_num"`
	Cost         float64 `csv:"cost"`
	Probability  float64 `csv:"probability"`
	Chosen       float64 `csv:"chosen"`
	Multiplicity int     `csv:"multiplicity"`
}

// WriteRecords writes every pathset's per-path and per-link rows to
// pathsFile and linksFile.
func WriteRecords(pathsFile, linksFile string, pathsets []model.PathSet) error {
	var paths []*pathRecord
	var links []*linkRecord
	for _, ps := range pathsets {
		for pi, p := range ps.Paths {
			paths = append(paths, &pathRecord{
				RequestID:    ps.Request.RequestID,
				PathNum:      pi,
				Cost:         p.Cost,
				Probability:  p.Probability,
				Chosen:       float64(p.Chosen),
				Multiplicity: p.Multiplicity,
			})
			for _, l := range p.Links {
				links = append(links, &linkRecord{
					RequestID:   ps.Request.RequestID,
					PathNum:     pi,
					StopID:      int(l.AStop),
					ModeCode:    l.Mode,
					TripID:      int(l.TripID),
					AdjStopID:   int(l.BStop),
					Sequence:    l.ASeq,
					AdjSequence: l.BSeq,
					Label:       l.PfWaitTime,
					TimeMin:     l.PfATime,
					LinkTimeMin: l.PfLinkTime,
					CostOrSec:   l.BoardTime,
					ArrDepMin:   l.PfBTime,
				})
			}
		}
	}

	if err := writeCSVFile(pathsFile, paths); err != nil {
		return err
	}
	return writeCSVFile(linksFile, links)
}

func writeCSVFile(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return txerr.Supply("creating pathset records file", err)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return txerr.Supply("writing pathset records", err)
	}
	return nil
}

// ReadRecords loads pathsets back from files written by WriteRecords,
// joining rows to requests by request_id. Requests with no rows get no
// pathset; rows for unknown requests are dropped.
func ReadRecords(pathsFile, linksFile string, requests []*model.Request) ([]model.PathSet, error) {
	var paths []*pathRecord
	var links []*linkRecord

	pf, err := os.Open(pathsFile)
	if err != nil {
		return nil, txerr.Supply("opening path records file", err)
	}
	defer pf.Close()
	if err := gocsv.UnmarshalFile(pf, &paths); err != nil {
		return nil, txerr.Supply("decoding path records", err)
	}

	lf, err := os.Open(linksFile)
	if err != nil {
		return nil, txerr.Supply("opening link records file", err)
	}
	defer lf.Close()
	if err := gocsv.UnmarshalFile(lf, &links); err != nil {
		return nil, txerr.Supply("decoding link records", err)
	}

	byRequest := make(map[string]*model.Request, len(requests))
	for _, r := range requests {
		byRequest[r.RequestID] = r
	}

	type psKey struct {
		requestID string
		pathNum   int
	}
	linksBy := make(map[psKey][]model.PathLink)
	for _, lr := range links {
		k := psKey{lr.RequestID, lr.PathNum}
		linksBy[k] = append(linksBy[k], model.PathLink{
			Mode:       lr.ModeCode,
			AStop:      model.StopID(lr.StopID),
			BStop:      model.StopID(lr.AdjStopID),
			TripID:     model.TripID(lr.TripID),
			ASeq:       lr.Sequence,
			BSeq:       lr.AdjSequence,
			PfATime:    lr.TimeMin,
			PfBTime:    lr.ArrDepMin,
			PfLinkTime: lr.LinkTimeMin,
			PfWaitTime: lr.Label,
			BoardTime:  lr.CostOrSec,
		})
	}

	setBy := make(map[string]*model.PathSet)
	var order []string
	for _, pr := range paths {
		req, ok := byRequest[pr.RequestID]
		if !ok {
			continue
		}
		ps, ok := setBy[pr.RequestID]
		if !ok {
			ps = &model.PathSet{Request: req}
			setBy[pr.RequestID] = ps
			order = append(order, pr.RequestID)
		}
		ps.Paths = append(ps.Paths, model.Path{
			Links:        linksBy[psKey{pr.RequestID, pr.PathNum}],
			Cost:         pr.Cost,
			Probability:  pr.Probability,
			Chosen:       model.ChosenStatus(pr.Chosen),
			Multiplicity: pr.Multiplicity,
		})
	}
	out := make([]model.PathSet, 0, len(order))
	for _, id := range order {
		out = append(out, *setBy[id])
	}
	return out, nil
}
