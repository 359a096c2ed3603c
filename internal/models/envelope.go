// Package models defines the event envelope and progression entities shared
// by the worker's handlers and repositories.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Source values carried in the envelope's _source field.
const (
	SourceClient = "client"
	SourceServer = "server"
)

// Envelope is the wire shape of every event flowing through the bus, raw
// and derived alike. ProjectID doubles as the per-tenant ordering key.
type Envelope struct {
	EventID    string         `json:"eventId,omitempty"` // assigned at ingestion; derived events get a fresh one
	ProjectID  string         `json:"projectId"`
	UserID     string         `json:"userId,omitempty"` // external user identifier
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Source     string         `json:"_source,omitempty"` // "client" or "server"
	Hops       int            `json:"_hops,omitempty"`   // cascade depth, incremented per derived emission
}

// ErrInvalidEnvelope indicates a structurally unusable envelope.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// DecodeEnvelope parses a bus payload into an Envelope and checks the
// fields the dispatch pipeline cannot work without.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.ProjectID == "" {
		return nil, fmt.Errorf("%w: missing projectId", ErrInvalidEnvelope)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidEnvelope)
	}
	return &env, nil
}

// Metric returns the canonical metric for the event: the segment before the
// first dot of the event name ("purchase.completed" -> "purchase").
func (e *Envelope) Metric() string {
	if i := strings.IndexByte(e.Event, '.'); i >= 0 {
		return e.Event[:i]
	}
	return e.Event
}

// Trusted reports whether the event is attributed to a server-side source.
// Anything else, including a missing _source, is treated as untrusted.
func (e *Envelope) Trusted() bool {
	return e.Source == SourceServer
}

// metricValueKeys are checked in order when extracting a numeric metric
// value from the event payload.
var metricValueKeys = []string{"count", "amount", "total", "value", "quantity"}

// MetricValue extracts a numeric value for metric comparisons from the
// payload. Missing or non-numeric values default to 1 (one occurrence).
func (e *Envelope) MetricValue() float64 {
	for _, key := range metricValueKeys {
		if raw, ok := e.Properties[key]; ok {
			if v, ok := toFloat(raw); ok {
				return v
			}
		}
	}
	return 1
}

// moneyKeys are checked in order when extracting a monetary amount.
var moneyKeys = []string{"amount", "total", "price", "value", "revenue"}

// ErrNoAmount indicates the payload carries no usable monetary amount.
var ErrNoAmount = errors.New("no monetary amount in event properties")

// MoneyMinorUnits extracts a monetary amount from the payload normalized to
// integer minor-currency units. Integral values are taken as already-minor
// units; fractional values are treated as major units and converted,
// rounding half away from zero.
func (e *Envelope) MoneyMinorUnits() (int64, error) {
	for _, key := range moneyKeys {
		raw, ok := e.Properties[key]
		if !ok {
			continue
		}
		v, ok := toFloat(raw)
		if !ok || v <= 0 {
			continue
		}
		if v == math.Trunc(v) {
			return int64(v), nil
		}
		return int64(math.Round(v * 100)), nil
	}
	return 0, ErrNoAmount
}

// toFloat coerces the loosely-typed JSON values seen in event payloads.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PropertyString returns a string property from the payload, or "".
func (e *Envelope) PropertyString(key string) string {
	if raw, ok := e.Properties[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}
