// Package status exposes the progress of a sweep to the outside: a gRPC
// health service and an HTTP endpoint with Prometheus metrics and persisted
// summaries. Both listeners are optional.
package status

import (
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the sweep
const ServiceName = "trialsweep.Sweep"

// Phase is the lifecycle phase of a sweep
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
	PhaseFailed   Phase = "failed"
)

// State tracks the sweep phase and mirrors it into the gRPC health server
type State struct {
	mu     sync.RWMutex
	phase  Phase
	health *health.Server
}

func NewState() *State {
	s := &State{health: health.NewServer()}
	s.Set(PhaseStarting)
	return s
}

// Set records a new phase. Only running and finished sweeps report SERVING.
func (s *State) Set(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if p == PhaseRunning || p == PhaseFinished {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Health returns the gRPC health service backing this state
func (s *State) Health() *health.Server {
	return s.health
}
