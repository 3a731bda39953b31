package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type incident struct {
	ID                  string `json:"id"`
	CaseNumber          string `json:"caseNumber"`
	Severity            string `json:"severity"`
	Priority            string `json:"priority"`
	Status              string `json:"status"`
	Site                string `json:"site"`
	Cause               string `json:"cause"`
	Action              string `json:"action"`
	Problem             string `json:"problem"`
	StartTime           any    `json:"startTime"`
	EndTime             any    `json:"endTime,omitempty"`
	EscalationStartTime any    `json:"escalationStartTime,omitempty"`
	TotalPauseMinutes   any    `json:"totalPauseMinutes,omitempty"`
}

var (
	severities = []string{"S1", "S2", "S3", "S4", "S5", "red", "sev 2"}
	priorities = []string{"High", "Medium", "Low"}
	sites      = []string{"north-hub", "south-hub", "east-pop", "west-pop", "core-dc"}
	causes     = []string{"fiber cut", "power outage", "hardware failure", "config change", "vendor issue"}
	problems   = []string{"link down", "packet loss", "high latency", "service unreachable"}
	actions    = []string{"replaced module", "rerouted traffic", "rolled back change", "vendor dispatched"}
)

// generate builds a deterministic mix of resolved and open incidents covering
// the timestamp formats the engine accepts.
func generate(n int, seed int64, now time.Time) []incident {
	rng := rand.New(rand.NewSource(seed))
	out := make([]incident, 0, n)
	for i := 0; i < n; i++ {
		start := now.Add(-time.Duration(rng.Intn(120*24*60)) * time.Minute)
		inc := incident{
			ID:         fmt.Sprintf("inc-%04d", i),
			CaseNumber: fmt.Sprintf("INC-%06d", 100000+i),
			Severity:   severities[rng.Intn(len(severities))],
			Priority:   priorities[rng.Intn(len(priorities))],
			Site:       sites[rng.Intn(len(sites))],
			Cause:      causes[rng.Intn(len(causes))],
			Problem:    problems[rng.Intn(len(problems))],
			Action:     actions[rng.Intn(len(actions))],
			StartTime:  start.Format(time.RFC3339),
		}
		switch i % 4 {
		case 1:
			inc.StartTime = start.Format("02/01/2006 15:04")
		case 2:
			inc.StartTime = float64(start.Unix())/86400 + 25569
		}

		if rng.Float64() < 0.8 {
			minutes := 20 + rng.Intn(600)
			end := start.Add(time.Duration(minutes) * time.Minute)
			if end.After(now) {
				end = now
			}
			inc.Status = "Closed"
			inc.EndTime = end.Format(time.RFC3339)
			if rng.Float64() < 0.3 {
				inc.EscalationStartTime = start.Add(time.Duration(minutes/3) * time.Minute).Format(time.RFC3339)
			}
			if rng.Float64() < 0.25 {
				inc.TotalPauseMinutes = fmt.Sprintf("%02d:%02d", rng.Intn(2), rng.Intn(60))
			}
		} else {
			inc.Status = []string{"Open", "In Progress", "Pending"}[rng.Intn(3)]
		}
		out = append(out, inc)
	}
	return out
}

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	count := flag.Int("count", 250, "number of incidents to serve")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/incidents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"incidents": generate(*count, *seed, time.Now().UTC().Truncate(time.Hour))})
	})

	logger := log.New(log.Writer(), "source-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
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
