package domain

import "time"

// Entry is one endpoint's slot in a Report.
type Entry struct {
	Verdict  Verdict         `json:"verdict"`
	Alert    *AlertEvent     `json:"alert,omitempty"`
	Dispatch *DispatchResult `json:"dispatch,omitempty"`
}

// Report holds the verdicts of one cycle in input order.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
}

func (r Report) Len() int { return len(r.Entries) }

// Verdict looks up the verdict for ep.
func (r Report) Verdict(ep Endpoint) (Verdict, bool) {
	for _, e := range r.Entries {
		if e.Verdict.Endpoint == ep {
			return e.Verdict, true
		}
	}
	return Verdict{}, false
}

// Endpoints returns the endpoints in report order.
func (r Report) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Verdict.Endpoint
	}
	return out
}

// Alerts returns every AlertEvent raised during the cycle.
func (r Report) Alerts() []AlertEvent {
	var out []AlertEvent
	for _, e := range r.Entries {
		if e.Alert != nil {
			out = append(out, *e.Alert)
		}
	}
	return out
}

func (r Report) Count(s Status) int {
	n := 0
	for _, e := range r.Entries {
		if e.Verdict.Status == s {
			n++
		}
	}
	return n
}

// Complete reports whether every endpoint reached Up or Down.
func (r Report) Complete() bool {
	return r.Count(StatusUnknown) == 0
}

func (r Report) StatusLines() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Verdict.StatusLine()
	}
	return out
}
