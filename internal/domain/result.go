package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies why a probe attempt failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindRefused
	KindDNSFailure
	KindOther
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindNone:       "none",
	KindTimeout:    "timeout",
	KindRefused:    "refused",
	KindDNSFailure: "dns_failure",
	KindOther:      "other",
	KindCanceled:   "canceled",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", b)
}

// ProbeOutcome is the result of a single connection attempt.
type ProbeOutcome struct {
	Success    bool          `json:"success"`
	Kind       ErrorKind     `json:"error_kind"`
	ObservedAt time.Time     `json:"observed_at"`
	Latency    time.Duration `json:"latency"`
	Message    string        `json:"message,omitempty"`
}

// Status is the verdict of one endpoint for one cycle. Unknown is only
// reported for checks that were cancelled before reaching Up or Down.
type Status int

const (
	StatusUnknown Status = iota
	StatusUp
	StatusDown
)

var statusNames = map[Status]string{
	StatusUnknown: "unknown",
	StatusUp:      "up",
	StatusDown:    "down",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for st, name := range statusNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Verdict is the terminal conclusion for an endpoint in one cycle.
type Verdict struct {
	Endpoint     Endpoint      `json:"endpoint"`
	Status       Status        `json:"status"`
	AttemptsUsed int           `json:"attempts_used"`
	LastOutcome  ProbeOutcome  `json:"last_outcome"`
	Elapsed      time.Duration `json:"elapsed"`
}

// StatusLine is the human readable one-liner printed for every endpoint.
func (v Verdict) StatusLine() string {
	switch v.Status {
	case StatusUp:
		return v.Endpoint.String() + " is OK"
	case StatusDown:
		return v.Endpoint.String() + " is down"
	default:
		return v.Endpoint.String() + " is unknown"
	}
}

// AlertEvent is raised once per Down verdict.
type AlertEvent struct {
	Endpoint Endpoint  `json:"endpoint"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
	Origin   string    `json:"origin"`
	Kind     ErrorKind `json:"error_kind"`
	Detail   string    `json:"detail,omitempty"`
}

// NewAlertEvent builds the alert for a Down verdict.
func NewAlertEvent(v Verdict, origin string, at time.Time) AlertEvent {
	return AlertEvent{
		Endpoint: v.Endpoint,
		Message:  v.Endpoint.String() + " is down",
		RaisedAt: at,
		Origin:   origin,
		Kind:     v.LastOutcome.Kind,
		Detail:   v.LastOutcome.Message,
	}
}

func (a AlertEvent) Subject() string {
	return "From machine " + a.Origin
}

// DispatchResult reports what a Notifier did with an AlertEvent.
type DispatchResult struct {
	Notifier  string `json:"notifier"`
	Delivered bool   `json:"delivered"`
	Skipped   bool   `json:"skipped,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Delivered returns a successful result for the named notifier.
func Delivered(name string) DispatchResult {
	return DispatchResult{Notifier: name, Delivered: true}
}

// Failed returns a failed result for the named notifier.
func Failed(name string, err error) DispatchResult {
	r := DispatchResult{Notifier: name, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
