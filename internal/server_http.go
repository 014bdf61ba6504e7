package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"roomshare/internal/storage"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityReader serves journal queries for the admin listener.
type ActivityReader interface {
	ListActivity(ctx context.Context, room string, limit int) ([]storage.Activity, error)
}

// AdminOptions wires the admin HTTP surface. Every field is optional; routes
// whose backing component is missing answer 404.
type AdminOptions struct {
	Hub      *Hub
	Presence *PresenceRegistry
	Journal  ActivityReader
	Feed     *ActivityFeed
	Metrics  *Metrics
	// Limiter throttles journal queries per client IP.
	Limiter *RateLimiter
}

type roomReport struct {
	RoomSummary
	Present []string `json:"present"`
}

type activityResponse struct {
	Activity []storage.Activity `json:"activity"`
}

// Admin exposes read-only views of both authorities over HTTP.
type Admin struct {
	hub      *Hub
	presence *PresenceRegistry
	journal  ActivityReader
	feed     *ActivityFeed
	metrics  *Metrics
	limiter  *RateLimiter
}

func NewAdmin(opts AdminOptions) *Admin {
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(30, time.Minute)
	}
	return &Admin{
		hub:      opts.Hub,
		presence: opts.Presence,
		journal:  opts.Journal,
		feed:     opts.Feed,
		metrics:  opts.Metrics,
		limiter:  opts.Limiter,
	}
}

// Handler returns the admin mux.
func (a *Admin) Handler() http.Handler {
	mux := http.NewServeMux()
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics)
	}
	mux.HandleFunc("/rooms", a.HandleRooms)
	mux.HandleFunc("/exists", a.HandleRoomExists)
	mux.HandleFunc("/activity", a.HandleActivity)
	if a.feed != nil {
		mux.HandleFunc("/ws/activity", a.feed.ServeWS)
	}
	return mux
}

func (a *Admin) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.hub == nil {
		http.NotFound(w, r)
		return
	}
	summaries := a.hub.Summaries()
	reports := make([]roomReport, 0, len(summaries))
	for _, summary := range summaries {
		report := roomReport{RoomSummary: summary, Present: []string{}}
		if a.presence != nil {
			report.Present = a.presence.Users(summary.Name)
		}
		reports = append(reports, report)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": reports})
}

func (a *Admin) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if a.hub != nil && a.hub.Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (a *Admin) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.journal == nil {
		http.NotFound(w, r)
		return
	}
	if !a.limiter.Allow(clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxActivityLimit)
	}
	activity, err := a.journal.ListActivity(r.Context(), r.URL.Query().Get("room"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if activity == nil {
		activity = []storage.Activity{}
	}
	writeJSON(w, http.StatusOK, activityResponse{Activity: activity})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
