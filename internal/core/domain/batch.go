package domain

import "errors"

// ItemOutcome is the result of one intent inside a best-effort batch.
type ItemOutcome struct {
	Index    int       `json:"index"`
	SKU      string    `json:"sku"`
	Movement *Movement `json:"movement,omitempty"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

type BatchReport struct {
	Outcomes []ItemOutcome `json:"outcomes"`
}

func (r *BatchReport) Add(o ItemOutcome) {
	if o.Err != nil {
		o.Error = o.Err.Error()
	}
	r.Outcomes = append(r.Outcomes, o)
}

func (r BatchReport) Applied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

func (r BatchReport) Failures() []ItemOutcome {
	var out []ItemOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Count returns how many outcomes failed with target.
func (r BatchReport) Count(target error) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil && errors.Is(o.Err, target) {
			n++
		}
	}
	return n
}

// Unrecoverable reports a batch where nothing applied and at least one
// intent failed on the store itself.
func (r BatchReport) Unrecoverable() bool {
	if len(r.Outcomes) == 0 || r.Applied() > 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if IsPersistence(o.Err) {
			return true
		}
	}
	return false
}
