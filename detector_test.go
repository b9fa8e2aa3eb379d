package main

import "testing"

func quietConfig() detectorConfig {
	return detectorConfig{
		SilenceThresholdDb: -40,
		SilenceDurationMs:  1000,
		StartGuardMs:       500,
		RequireSpeech:      true,
		SpeechActivateDb:   -35,
		EmaAlpha:           1.0, // no smoothing: tests control levels exactly
	}
}

// feed pushes count frames of frameMs each at a constant level,
// starting at startMs of elapsed time. Returns whether any frame asked
// to stop and the elapsed time after the last frame.
func feed(d *silenceDetector, db, frameMs, startMs float64, count int) (bool, float64) {
	elapsed := startMs
	for range count {
		elapsed += frameMs
		if stop, _ := d.Ingest(db, frameMs, elapsed); stop {
			return true, elapsed
		}
	}
	return false, elapsed
}

func TestDetectorNeverStopsWithoutSpeech(t *testing.T) {
	d := newSilenceDetector(quietConfig())
	// 60 seconds of deep silence, far past guard and duration.
	if stop, _ := feed(d, -80, 100, 0, 600); stop {
		t.Error("auto-stop fired though the user never spoke")
	}
}

func TestDetectorStopsWhenSpeechNotRequired(t *testing.T) {
	cfg := quietConfig()
	cfg.RequireSpeech = false
	d := newSilenceDetector(cfg)
	stop, at := feed(d, -80, 100, cfg.StartGuardMs, 20)
	if !stop {
		t.Fatal("auto-stop never fired with RequireSpeech=false")
	}
	if want := cfg.StartGuardMs + cfg.SilenceDurationMs; at != want {
		t.Errorf("stopped at %vms, want %vms", at, want)
	}
}

func TestDetectorNoSilenceCreditDuringGuard(t *testing.T) {
	cfg := quietConfig()
	cfg.RequireSpeech = false
	d := newSilenceDetector(cfg)

	// Frames entirely inside the guard window accrue nothing.
	var dbg detectorDebug
	for elapsed := 100.0; elapsed < cfg.StartGuardMs; elapsed += 100 {
		_, dbg = d.Ingest(-80, 100, elapsed)
		if dbg.SilenceAccumMs != 0 {
			t.Fatalf("accumulator = %v at %vms, want 0 during guard", dbg.SilenceAccumMs, elapsed)
		}
	}
}

func TestDetectorStopTiming(t *testing.T) {
	cfg := quietConfig()
	d := newSilenceDetector(cfg)

	// Speak past the guard, then go just under the threshold.
	if stop, _ := feed(d, -20, 100, 0, 10); stop {
		t.Fatal("stopped during speech")
	}
	stop, at := feed(d, cfg.SilenceThresholdDb-0.5, 100, 1000, 20)
	if !stop {
		t.Fatal("auto-stop never fired after sustained near-threshold silence")
	}
	if want := 1000 + cfg.SilenceDurationMs; at != want {
		t.Errorf("stopped at %vms, want exactly %vms", at, want)
	}
}

func TestDetectorSpeechResetsAccumulator(t *testing.T) {
	cfg := quietConfig()
	d := newSilenceDetector(cfg)

	feed(d, -20, 100, 0, 10) // speak through the guard
	// 900ms of silence, then one loud frame, then 900ms more: never
	// reaches the 1000ms requirement.
	if stop, _ := feed(d, -80, 100, 1000, 9); stop {
		t.Fatal("stopped before silenceDurationMs accumulated")
	}
	d.Ingest(-20, 100, 2000)
	if stop, _ := feed(d, -80, 100, 2100, 9); stop {
		t.Error("accumulator was not reset by the intervening speech frame")
	}
}

func TestDetectorEMASmoothsImpulses(t *testing.T) {
	cfg := quietConfig()
	cfg.RequireSpeech = true
	cfg.EmaAlpha = 0.1
	d := newSilenceDetector(cfg)

	// A single loud frame in a quiet stream barely moves a slow EMA,
	// so it must not count as speech.
	for range 5 {
		d.Ingest(-80, 100, 100)
	}
	_, dbg := d.Ingest(0, 100, 600)
	if dbg.HasSpoken {
		t.Errorf("single impulse marked hasSpoken (ema=%v)", dbg.EmaDb)
	}
}

func TestDetectorConfigRefreshKeepsState(t *testing.T) {
	cfg := quietConfig()
	d := newSilenceDetector(cfg)
	feed(d, -20, 100, 0, 5) // hasSpoken becomes true

	cfg.SilenceDurationMs = 2000
	d.SetConfig(cfg)
	_, dbg := d.Ingest(-80, 100, 1000)
	if !dbg.HasSpoken {
		t.Error("config refresh must not reset hasSpoken")
	}
}
