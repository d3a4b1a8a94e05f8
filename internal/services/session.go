package services

import (
	"sync"
	"sync/atomic"

	"fieldops/internal/models"
)

// Phase names the step a clock operation is in
type Phase string

const (
	PhaseLoading  Phase = "loading"
	PhaseLocating Phase = "locating"
	PhaseSaving   Phase = "saving"
	PhaseLogging  Phase = "logging"
)

// session is the per-user state of the attendance workflow
type session struct {
	mu    sync.Mutex
	busy  uint64 // generation holding the busy flag, 0 when idle
	gen   uint64
	today *models.ShiftRecord
}

// begin takes the busy flag. It returns false if an operation is already in flight.
func (s *session) begin() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy != 0 {
		return 0, false
	}
	s.gen++
	s.busy = s.gen
	return s.gen, true
}

// end releases the busy flag if gen still holds it
func (s *session) end(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy == gen {
		s.busy = 0
	}
}

func (s *session) isBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy != 0
}

func (s *session) setToday(rec *models.ShiftRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.today = rec
}

// cachedToday returns the last confirmed record if it belongs to workDate
func (s *session) cachedToday(workDate string) *models.ShiftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.today == nil || s.today.WorkDate != workDate {
		return nil
	}
	return s.today
}

// phaseTracker records the current phase for the watchdog
type phaseTracker struct {
	v atomic.Value
}

func newPhaseTracker() *phaseTracker {
	p := &phaseTracker{}
	p.set(PhaseLoading)
	return p
}

func (p *phaseTracker) set(ph Phase) { p.v.Store(ph) }
func (p *phaseTracker) get() Phase   { return p.v.Load().(Phase) }
