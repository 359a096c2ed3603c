package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	data := []byte(`{
		"projectId": "proj_1",
		"userId": "ext-42",
		"event": "purchase.completed",
		"properties": {"amount": 5000},
		"timestamp": "2026-08-01T12:00:00Z",
		"receivedAt": "2026-08-01T12:00:01Z",
		"_source": "server"
	}`)

	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "proj_1", env.ProjectID)
	assert.Equal(t, "purchase.completed", env.Event)
	assert.True(t, env.Trusted())
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"missing project", `{"event": "signup"}`},
		{"missing event", `{"projectId": "proj_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestEnvelope_Metric(t *testing.T) {
	tests := []struct {
		event  string
		metric string
	}{
		{"purchase.completed", "purchase"},
		{"login", "login"},
		{"quest.step.completed", "quest"},
	}

	for _, tt := range tests {
		env := &Envelope{Event: tt.event}
		assert.Equal(t, tt.metric, env.Metric())
	}
}

func TestEnvelope_Trusted(t *testing.T) {
	assert.True(t, (&Envelope{Source: SourceServer}).Trusted())
	assert.False(t, (&Envelope{Source: SourceClient}).Trusted())
	assert.False(t, (&Envelope{}).Trusted())
}

func TestEnvelope_MetricValue(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]any
		expected float64
	}{
		{"count wins over amount", map[string]any{"count": 3.0, "amount": 100.0}, 3},
		{"amount fallback", map[string]any{"amount": 100.0}, 100},
		{"string coerced", map[string]any{"value": "12.5"}, 12.5},
		{"missing defaults to one", map[string]any{"unrelated": true}, 1},
		{"nil props", nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{Properties: tt.props}
			assert.Equal(t, tt.expected, env.MetricValue())
		})
	}
}

func TestEnvelope_MoneyMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]any
		expected int64
	}{
		{"integral is already minor units", map[string]any{"amount": 5000.0}, 5000},
		{"fractional is major units", map[string]any{"amount": 49.99}, 4999},
		{"rounding half away from zero", map[string]any{"total": 10.005}, 1001},
		{"total fallback", map[string]any{"total": 250.0}, 250},
		{"skips non-positive", map[string]any{"amount": -5.0, "price": 300.0}, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{Properties: tt.props}
			got, err := env.MoneyMinorUnits()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEnvelope_MoneyMinorUnits_Missing(t *testing.T) {
	env := &Envelope{Properties: map[string]any{"sku": "A-1"}}
	_, err := env.MoneyMinorUnits()
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestNewDerived(t *testing.T) {
	cause := &Envelope{
		ProjectID: "proj_1",
		UserID:    "ext-42",
		Event:     "purchase.completed",
		Timestamp: time.Now().Add(-time.Minute),
		Hops:      2,
	}

	derived := NewDerived(cause, EventBadgeUnlocked, map[string]any{"badgeId": "b1"})
	assert.Equal(t, "proj_1", derived.ProjectID)
	assert.Equal(t, "ext-42", derived.UserID)
	assert.Equal(t, EventBadgeUnlocked, derived.Event)
	assert.Equal(t, 3, derived.Hops)
	assert.True(t, derived.Trusted(), "derived events are server-sourced")
}
