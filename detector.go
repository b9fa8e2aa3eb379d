package main

// Silence auto-stop defaults. Thresholds are in dBFS, matching the
// meter output where 0 dB is a full-scale sample.
const (
	defaultSilenceThresholdDb = -40.0
	defaultSilenceDurationMs  = 1500.0
	defaultStartGuardMs       = 1200.0
	defaultSpeechActivateDb   = -35.0
	defaultEmaAlpha           = 0.3
)

type detectorConfig struct {
	SilenceThresholdDb float64
	SilenceDurationMs  float64
	StartGuardMs       float64
	RequireSpeech      bool
	SpeechActivateDb   float64
	EmaAlpha           float64
}

func defaultDetectorConfig() detectorConfig {
	return detectorConfig{
		SilenceThresholdDb: defaultSilenceThresholdDb,
		SilenceDurationMs:  defaultSilenceDurationMs,
		StartGuardMs:       defaultStartGuardMs,
		RequireSpeech:      true,
		SpeechActivateDb:   defaultSpeechActivateDb,
		EmaAlpha:           defaultEmaAlpha,
	}
}

// silenceDetector decides when a recording has gone quiet for long
// enough to stop on its own. It smooths the instantaneous level with an
// EMA so single-frame noise spikes neither trigger speech detection nor
// reset accumulated silence.
type silenceDetector struct {
	cfg detectorConfig

	emaDb          float64
	initialized    bool
	hasSpoken      bool
	silenceAccumMs float64
}

type detectorDebug struct {
	EmaDb          float64
	HasSpoken      bool
	GuardPassed    bool
	SilenceAccumMs float64
}

func newSilenceDetector(cfg detectorConfig) *silenceDetector {
	return &silenceDetector{cfg: cfg}
}

// SetConfig applies a live settings change. Accumulated state is kept:
// changing a threshold mid-session must not forget that the user
// already spoke.
func (d *silenceDetector) SetConfig(cfg detectorConfig) {
	d.cfg = cfg
}

// Ingest consumes one meter sample and reports whether the session
// should auto-stop now.
func (d *silenceDetector) Ingest(dbInstant, frameDurationMs, elapsedMs float64) (bool, detectorDebug) {
	if d.initialized {
		d.emaDb = (1-d.cfg.EmaAlpha)*d.emaDb + d.cfg.EmaAlpha*dbInstant
	} else {
		d.emaDb = dbInstant
		d.initialized = true
	}

	if d.emaDb >= d.cfg.SpeechActivateDb {
		d.hasSpoken = true
	}

	guardPassed := elapsedMs >= d.cfg.StartGuardMs
	speechReady := !d.cfg.RequireSpeech || d.hasSpoken

	// No silence credit accrues before the guard period, or before
	// speech when speech is required.
	if guardPassed && speechReady && d.emaDb < d.cfg.SilenceThresholdDb {
		d.silenceAccumMs += frameDurationMs
	} else {
		d.silenceAccumMs = 0
	}

	shouldStop := guardPassed && speechReady && d.silenceAccumMs >= d.cfg.SilenceDurationMs
	return shouldStop, detectorDebug{
		EmaDb:          d.emaDb,
		HasSpoken:      d.hasSpoken,
		GuardPassed:    guardPassed,
		SilenceAccumMs: d.silenceAccumMs,
	}
}
