package main

import (
	"sync"
	"time"

	"dictate/audio"
)

type sessionPhase int

const (
	phaseIdle sessionPhase = iota
	phaseListening
	phaseTranscribing
)

func (p sessionPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseListening:
		return "listening"
	case phaseTranscribing:
		return "transcribing"
	}
	return "unknown"
}

type stopTrigger int

const (
	stopManual stopTrigger = iota
	stopAutoSilence
	stopMaxDuration
)

func (t stopTrigger) String() string {
	switch t {
	case stopManual:
		return "manual"
	case stopAutoSilence:
		return "auto_silence"
	case stopMaxDuration:
		return "max_duration"
	}
	return "unknown"
}

// sessionCoordinator owns the mutable state of the single active
// recording session. A hotkey release and the auto-silence timer can
// both try to stop the same recording; the stop-in-flight flag makes
// whichever asks first the exclusive owner of the stop sequence.
type sessionCoordinator struct {
	mu sync.Mutex

	phase         sessionPhase
	detector      *silenceDetector
	startedAt     time.Time
	stopInFlight  bool
	autoStopFired bool
}

func newSessionCoordinator() *sessionCoordinator {
	return &sessionCoordinator{}
}

// BeginSession resets all per-session state and arms the detector.
func (s *sessionCoordinator) BeginSession(cfg detectorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseListening
	s.detector = newSilenceDetector(cfg)
	s.startedAt = time.Now() // monotonic reading survives clock changes
	s.stopInFlight = false
	s.autoStopFired = false
}

// BeginStop claims the stop sequence. It returns false if a stop is
// already in flight, or for a second auto-silence trigger in the same
// session.
func (s *sessionCoordinator) BeginStop(trigger stopTrigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopInFlight {
		return false
	}
	if trigger == stopAutoSilence {
		if s.autoStopFired {
			return false
		}
		s.autoStopFired = true
	}
	s.stopInFlight = true
	return true
}

// AbortStop releases the claim without ending the session, so a failed
// capture-stop can be retried later.
func (s *sessionCoordinator) AbortStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopInFlight = false
}

// FinishStop ends the session. The instance may be reused with a fresh
// BeginSession.
func (s *sessionCoordinator) FinishStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopInFlight = false
	s.startedAt = time.Time{}
	s.phase = phaseIdle
}

func (s *sessionCoordinator) SetPhase(p sessionPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *sessionCoordinator) Phase() sessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Elapsed reports how long the current session has been recording.
func (s *sessionCoordinator) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// EvaluateAutoStop feeds one meter sample to the detector. It is a
// no-op while disabled, mid-stop, or outside an active session. The
// config is refreshed on every call so live settings changes apply
// without resetting detector state.
func (s *sessionCoordinator) EvaluateAutoStop(sample audio.MeterSample, enabled bool, cfg detectorConfig) (bool, detectorDebug) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !enabled || s.stopInFlight || s.startedAt.IsZero() || s.detector == nil {
		return false, detectorDebug{}
	}
	s.detector.SetConfig(cfg)
	elapsedMs := float64(time.Since(s.startedAt)) / float64(time.Millisecond)
	return s.detector.Ingest(sample.InstantDB, sample.FrameDurationMs, elapsedMs)
}
