package main

import (
	"testing"

	"dictate/audio"
)

func TestBeginStopSingleOwner(t *testing.T) {
	s := newSessionCoordinator()
	s.BeginSession(defaultDetectorConfig())

	if !s.BeginStop(stopManual) {
		t.Fatal("first BeginStop should succeed")
	}
	if s.BeginStop(stopManual) {
		t.Error("second BeginStop while one is in flight should fail")
	}
	if s.BeginStop(stopAutoSilence) {
		t.Error("auto-silence stop during a manual stop should fail")
	}

	s.FinishStop()
	if s.Phase() != phaseIdle {
		t.Errorf("phase = %v after FinishStop, want idle", s.Phase())
	}
}

func TestAutoSilenceFiresOncePerSession(t *testing.T) {
	s := newSessionCoordinator()
	s.BeginSession(defaultDetectorConfig())

	if !s.BeginStop(stopAutoSilence) {
		t.Fatal("first auto-silence stop should succeed")
	}
	s.AbortStop()
	if s.BeginStop(stopAutoSilence) {
		t.Error("auto-silence may fire at most once per session")
	}
	// A manual stop is still allowed after the abort.
	if !s.BeginStop(stopManual) {
		t.Error("manual stop after AbortStop should succeed")
	}

	// A fresh session re-arms auto-silence.
	s.FinishStop()
	s.BeginSession(defaultDetectorConfig())
	if !s.BeginStop(stopAutoSilence) {
		t.Error("new session should accept auto-silence again")
	}
}

func TestAbortStopAllowsRetry(t *testing.T) {
	s := newSessionCoordinator()
	s.BeginSession(defaultDetectorConfig())

	if !s.BeginStop(stopManual) {
		t.Fatal("BeginStop failed")
	}
	s.AbortStop()
	if !s.BeginStop(stopManual) {
		t.Error("BeginStop after AbortStop should succeed again")
	}
}

func TestEvaluateAutoStopGating(t *testing.T) {
	cfg := defaultDetectorConfig()
	cfg.RequireSpeech = false
	cfg.StartGuardMs = 0
	cfg.SilenceDurationMs = 100
	sample := audio.MeterSample{InstantDB: -80, FrameDurationMs: 100}

	t.Run("disabled", func(t *testing.T) {
		s := newSessionCoordinator()
		s.BeginSession(cfg)
		for range 10 {
			if stop, _ := s.EvaluateAutoStop(sample, false, cfg); stop {
				t.Fatal("disabled evaluation must never stop")
			}
		}
	})

	t.Run("no active session", func(t *testing.T) {
		s := newSessionCoordinator()
		if stop, _ := s.EvaluateAutoStop(sample, true, cfg); stop {
			t.Fatal("evaluation before BeginSession must be a no-op")
		}
	})

	t.Run("mid-stop", func(t *testing.T) {
		s := newSessionCoordinator()
		s.BeginSession(cfg)
		s.BeginStop(stopManual)
		for range 10 {
			if stop, _ := s.EvaluateAutoStop(sample, true, cfg); stop {
				t.Fatal("evaluation during a stop in flight must be a no-op")
			}
		}
	})

	t.Run("fires after sustained silence", func(t *testing.T) {
		s := newSessionCoordinator()
		s.BeginSession(cfg)
		fired := false
		for range 10 {
			if stop, _ := s.EvaluateAutoStop(sample, true, cfg); stop {
				fired = true
				break
			}
		}
		if !fired {
			t.Error("auto-stop never fired on sustained silence")
		}
	})
}
