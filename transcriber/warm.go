package transcriber

import (
	"io"
	"net/http"
	"sync"
	"time"

	"dictate/log"
)

const (
	// prewarmMinInterval bounds how often a HEAD actually goes out; an
	// idle connection stays alive well past 7s so pinging faster buys
	// nothing.
	prewarmMinInterval = 7 * time.Second
	prewarmTimeout     = 3 * time.Second
)

// Warmer pre-establishes the TLS connection to the transcription host
// so the real request skips the handshake. It is process-wide: there is
// one upstream host and sessions share its connection pool.
type Warmer struct {
	client   *http.Client
	url      string
	interval time.Duration

	mu          sync.Mutex
	lastPrewarm time.Time
	keepUntil   time.Time
	loopRunning bool
}

func NewWarmer(client *http.Client, url string) *Warmer {
	return &Warmer{client: client, url: url, interval: prewarmMinInterval}
}

// Prewarm issues one HEAD request unless one went out within the rate
// gate. Returns whether a request was actually made (the gate is what
// tests care about).
func (w *Warmer) Prewarm() bool {
	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastPrewarm) < w.interval {
		w.mu.Unlock()
		return false
	}
	w.lastPrewarm = now
	w.mu.Unlock()

	go w.ping()
	return true
}

// KeepWarm extends a rolling window during which the warmer keeps
// pinging on its own. Called when recording starts and again when it
// stops, so the connection is hot by the time audio is ready to send.
func (w *Warmer) KeepWarm(window time.Duration) {
	w.Prewarm()

	w.mu.Lock()
	until := time.Now().Add(window)
	if until.After(w.keepUntil) {
		w.keepUntil = until
	}
	if w.loopRunning {
		w.mu.Unlock()
		return
	}
	w.loopRunning = true
	w.mu.Unlock()

	go w.loop()
}

func (w *Warmer) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for range ticker.C {
		w.mu.Lock()
		expired := time.Now().After(w.keepUntil)
		if expired {
			w.loopRunning = false
		}
		w.mu.Unlock()
		if expired {
			return
		}
		w.Prewarm()
	}
}

func (w *Warmer) ping() {
	req, err := http.NewRequest(http.MethodHead, w.url, nil)
	if err != nil {
		return
	}
	client := *w.client
	client.Timeout = prewarmTimeout
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		log.Warnf("prewarm: %v", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.Infof("prewarm: %dms", time.Since(start).Milliseconds())
}
