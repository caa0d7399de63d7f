package source

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// Scenario names the payload shapes the simulated provider returns.
type Scenario int

const (
	ScenarioClean Scenario = iota
	ScenarioTypeMismatch
	ScenarioMissingFields
	scenarioCount
)

func (s Scenario) String() string {
	switch s {
	case ScenarioClean:
		return "clean"
	case ScenarioTypeMismatch:
		return "type_mismatch"
	case ScenarioMissingFields:
		return "missing_fields"
	}
	return "unknown"
}

// ScenarioPayload returns the raw payload the simulated provider sends for s.
func ScenarioPayload(s Scenario) *models.RawPayload {
	switch s {
	case ScenarioTypeMismatch:
		return &models.RawPayload{
			Age:     json.RawMessage(`"25+"`),
			Gender:  json.RawMessage(`"male"`),
			Country: json.RawMessage(`"UK"`),
			City:    json.RawMessage(`null`),
			Tags:    json.RawMessage(`"lifestyle,food"`),
			Score:   json.RawMessage(`"0.72"`),
		}
	case ScenarioMissingFields:
		// gender is absent rather than null.
		return &models.RawPayload{
			Age:     json.RawMessage(`null`),
			Country: json.RawMessage(`"CA"`),
			City:    json.RawMessage(`"Toronto"`),
			Tags:    json.RawMessage(`null`),
			Score:   json.RawMessage(`null`),
		}
	default:
		return &models.RawPayload{
			Age:     json.RawMessage(`28`),
			Gender:  json.RawMessage(`"female"`),
			Country: json.RawMessage(`"US"`),
			City:    json.RawMessage(`"New York"`),
			Tags:    json.RawMessage(`["fashion","travel"]`),
			Score:   json.RawMessage(`0.85`),
		}
	}
}

// Simulated stands in for the provider in local runs: it answers after a random
// delay with one of three payload shapes picked at random.
type Simulated struct {
	mu         sync.Mutex
	rng        *rand.Rand
	minLatency time.Duration
	maxLatency time.Duration
}

var _ Source = (*Simulated)(nil)

type SimulatedOption func(*Simulated)

// WithLatency sets the delay range; zero for both answers immediately.
func WithLatency(lo, hi time.Duration) SimulatedOption {
	return func(s *Simulated) {
		s.minLatency, s.maxLatency = lo, hi
	}
}

// WithRand injects the randomness source, for deterministic tests.
func WithRand(r *rand.Rand) SimulatedOption {
	return func(s *Simulated) { s.rng = r }
}

func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		minLatency: 500 * time.Millisecond,
		maxLatency: 1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulated) Fetch(ctx context.Context, _ string) (*models.ThirdPartyResponse, error) {
	s.mu.Lock()
	delay := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span)))
	}
	scenario := Scenario(s.rng.IntN(int(scenarioCount)))
	s.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, classifyError(ctx.Err())
		case <-t.C:
		}
	}

	return &models.ThirdPartyResponse{Success: true, Data: ScenarioPayload(scenario)}, nil
}
