package audit

import (
	"github.com/a3tai/handover-auditor/internal/handover"
)

// Tally counts records by validation outcome and by document type
type Tally struct {
	OK         int `json:"ok"`
	Error      int `json:"error"`
	Concession int `json:"concession"`
	Return     int `json:"return"`
	RAT        int `json:"rat"`
	Unknown    int `json:"unknown"`
}

// Add counts one record. A record bumps exactly one of ok/error and exactly
// one of the type counters; unrecognised TERM values count as unknown.
func (t *Tally) Add(rec handover.Record) {
	if rec.Status() == handover.StatusOK {
		t.OK++
	} else {
		t.Error++
	}

	switch rec.Term() {
	case handover.DocTypeConcession:
		t.Concession++
	case handover.DocTypeReturn:
		t.Return++
	case handover.DocTypeRAT:
		t.RAT++
	default:
		t.Unknown++
	}
}

// Merge adds the counters of other into t
func (t *Tally) Merge(other Tally) {
	t.OK += other.OK
	t.Error += other.Error
	t.Concession += other.Concession
	t.Return += other.Return
	t.RAT += other.RAT
	t.Unknown += other.Unknown
}

// Total returns the number of records counted
func (t Tally) Total() int {
	return t.OK + t.Error
}

// BatchResult is the folded view of one processing run
type BatchResult struct {
	Records []handover.Record `json:"records"`
	Tally   Tally             `json:"tally"`
}

// Fold tallies records, keeping them in the order given
func Fold(records []handover.Record) BatchResult {
	out := BatchResult{Records: make([]handover.Record, 0, len(records))}
	for _, rec := range records {
		out.Records = append(out.Records, rec)
		out.Tally.Add(rec)
	}
	return out
}
