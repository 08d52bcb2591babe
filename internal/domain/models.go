package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrConfiguration marks malformed endpoint lists and invalid policy values.
// These are fatal before any cycle runs.
var ErrConfiguration = errors.New("configuration error")

// ConfigError wraps ErrConfiguration with the offending field.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Endpoint is a (host, port) pair under observation.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return ConfigError("endpoint %q: empty host", e.String())
	}
	if strings.ContainsAny(e.Host, " \t/") {
		return ConfigError("endpoint %q: invalid host", e.String())
	}
	if e.Port < 1 || e.Port > 65535 {
		return ConfigError("endpoint %q: port must be in [1,65535]", e.String())
	}
	return nil
}

// ParseEndpoint parses "host:port" (IPv6 hosts in brackets).
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{}, ConfigError("endpoint %q: %v", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, ConfigError("endpoint %q: port %q is not a number", raw, portStr)
	}
	ep := Endpoint{Host: host, Port: port}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// ParseEndpointList parses a comma separated "host:port" list. Every
// malformed item is reported.
func ParseEndpointList(raw string) ([]Endpoint, error) {
	var (
		out  []Endpoint
		errs error
	)
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		ep, err := ParseEndpoint(item)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, ep)
	}
	return out, errs
}

// ValidateEndpoints rejects an empty list, invalid entries and duplicates.
func ValidateEndpoints(eps []Endpoint) error {
	if len(eps) == 0 {
		return ConfigError("no endpoints configured")
	}
	var errs error
	seen := make(map[Endpoint]struct{}, len(eps))
	for _, ep := range eps {
		if err := ep.Validate(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := seen[ep]; dup {
			errs = multierr.Append(errs, ConfigError("endpoint %q listed twice", ep.String()))
			continue
		}
		seen[ep] = struct{}{}
	}
	return errs
}

// RetryPolicy governs attempt count, inter-attempt delay and per-attempt timeout.
type RetryPolicy struct {
	MaxAttempts  int           `json:"max_attempts"`
	Delay        time.Duration `json:"delay"`
	ProbeTimeout time.Duration `json:"probe_timeout"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  2,
		Delay:        5 * time.Second,
		ProbeTimeout: 3 * time.Second,
	}
}

func (p RetryPolicy) Validate() error {
	var errs error
	if p.MaxAttempts < 1 {
		errs = multierr.Append(errs, ConfigError("max attempts must be >= 1, got %d", p.MaxAttempts))
	}
	if p.Delay < 0 {
		errs = multierr.Append(errs, ConfigError("retry delay must be >= 0, got %s", p.Delay))
	}
	if p.ProbeTimeout <= 0 {
		errs = multierr.Append(errs, ConfigError("probe timeout must be > 0, got %s", p.ProbeTimeout))
	}
	return errs
}

// WorstCase is the loose upper bound on the wall time of a Down verdict.
func (p RetryPolicy) WorstCase() time.Duration {
	if p.MaxAttempts < 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1)*p.Delay + time.Duration(p.MaxAttempts)*p.ProbeTimeout
}
