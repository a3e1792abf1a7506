package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type sourceVerdict struct {
	Name      string    `json:"name"`
	Verdict   string    `json:"verdict"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type threat struct {
	ID          string          `json:"id"`
	Indicator   string          `json:"indicator"`
	Type        string          `json:"type"`
	RiskScore   float64         `json:"risk_score"`
	Reputation  string          `json:"reputation"`
	Sources     []sourceVerdict `json:"sources"`
	FirstSeen   time.Time       `json:"first_seen"`
	LastUpdated time.Time       `json:"last_updated"`
	Tags        []string        `json:"tags,omitempty"`
}

type analyzeRequest struct {
	Indicator string `json:"indicator"`
	Type      string `json:"type"`
}

type store struct {
	mu      sync.Mutex
	threats []threat
	nextID  int
}

func (s *store) analyze(req analyzeRequest) threat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	score := scoreFor(req.Indicator)
	t := threat{
		ID:          "mock-" + strconv.Itoa(s.nextID),
		Indicator:   req.Indicator,
		Type:        req.Type,
		RiskScore:   score,
		Reputation:  reputationFor(score),
		FirstSeen:   now,
		LastUpdated: now,
		Sources: []sourceVerdict{
			{Name: "VirusTotal", Verdict: reputationFor(score), Score: score, Timestamp: now},
			{Name: "AbuseIPDB", Verdict: reputationFor(score / 2), Score: score / 2, Timestamp: now},
		},
	}
	s.threats = append([]threat{t}, s.threats...)
	return t
}

func (s *store) recent(limit int) []threat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.threats) {
		limit = len(s.threats)
	}
	return append([]threat(nil), s.threats[:limit]...)
}

// scoreFor derives a stable pseudo score so repeated demos look the same.
func scoreFor(indicator string) float64 {
	var sum int
	for _, r := range indicator {
		sum += int(r)
	}
	return float64(sum % 101)
}

func reputationFor(score float64) string {
	switch {
	case score >= 70:
		return "malicious"
	case score >= 40:
		return "suspicious"
	default:
		return "clean"
	}
}

func main() {
	data := &store{}
	data.analyze(analyzeRequest{Indicator: "evil-phish.example", Type: "domain"})
	data.analyze(analyzeRequest{Indicator: "203.0.113.7", Type: "ip"})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"service": "ATIA Backend", "status": "healthy"})
	})

	mux.HandleFunc("/api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Indicator) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "indicator is required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data.analyze(req)})
	})

	mux.HandleFunc("/api/v1/threats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data.recent(limit)})
	})

	logger := log.New(log.Writer(), "atia-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              ":8080",
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
