package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	activeSessions atomic.Int64
	sessionsTotal  atomic.Uint64
	framesIn       atomic.Uint64
	protocolErrors atomic.Uint64
	uploads        atomic.Uint64
	downloads      atomic.Uint64
	bytesUploaded  atomic.Uint64

	datagramsIn      atomic.Uint64
	datagramsDropped atomic.Uint64
	datagramsSent    atomic.Uint64
	sendFailures     atomic.Uint64
	evictions        atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSession() {
	m.activeSessions.Add(1)
	m.sessionsTotal.Add(1)
}

func (m *Metrics) DecSession() {
	m.activeSessions.Add(-1)
}

func (m *Metrics) IncFrame() {
	m.framesIn.Add(1)
}

func (m *Metrics) IncProtocolError() {
	m.protocolErrors.Add(1)
}

func (m *Metrics) AddUpload(size int64) {
	m.uploads.Add(1)
	if size > 0 {
		m.bytesUploaded.Add(uint64(size))
	}
}

func (m *Metrics) IncDownload() {
	m.downloads.Add(1)
}

func (m *Metrics) IncDatagram() {
	m.datagramsIn.Add(1)
}

func (m *Metrics) IncDropped() {
	m.datagramsDropped.Add(1)
}

func (m *Metrics) IncSent() {
	m.datagramsSent.Add(1)
}

func (m *Metrics) IncSendFailure() {
	m.sendFailures.Add(1)
}

func (m *Metrics) AddEvictions(n int) {
	if n > 0 {
		m.evictions.Add(uint64(n))
	}
}

// Snapshot returns the current counter values keyed by metric name.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"tcp_active_sessions":      m.activeSessions.Load(),
		"tcp_sessions_total":       m.sessionsTotal.Load(),
		"tcp_frames_total":         m.framesIn.Load(),
		"tcp_protocol_errors":      m.protocolErrors.Load(),
		"uploads_total":            m.uploads.Load(),
		"downloads_total":          m.downloads.Load(),
		"bytes_uploaded_total":     m.bytesUploaded.Load(),
		"udp_datagrams_total":      m.datagramsIn.Load(),
		"udp_datagrams_dropped":    m.datagramsDropped.Load(),
		"udp_datagrams_sent":       m.datagramsSent.Load(),
		"udp_send_failures":        m.sendFailures.Load(),
		"presence_evictions_total": m.evictions.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
