package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"

	"visitrack/internal/models"
)

// loadtest drives claim and batch ingestion traffic against a running server.
func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
		rate      = flag.Int("rate", 50, "requests per second")
		duration  = flag.Duration("duration", 30*time.Second, "attack duration")
		visitors  = flag.Int("visitors", 500, "distinct visitor ids")
		batchSize = flag.Int("batch", 20, "events per batch request")
		mode      = flag.String("mode", "mixed", "claim, batch or mixed")
	)
	flag.Parse()

	targeter := newTargeter(*baseURL, *mode, *visitors, *batchSize)
	attacker := vegeta.NewAttacker(vegeta.Timeout(10 * time.Second))

	var metrics vegeta.Metrics
	pace := vegeta.Rate{Freq: *rate, Per: time.Second}
	for res := range attacker.Attack(targeter, pace, *duration, "visitrack-"+*mode) {
		metrics.Add(res)
	}
	metrics.Close()

	reporter := vegeta.NewTextReporter(&metrics)
	if err := reporter.Report(os.Stdout); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	if metrics.Success < 0.99 {
		os.Exit(1)
	}
}

func newTargeter(baseURL, mode string, visitors, batchSize int) vegeta.Targeter {
	header := http.Header{"Content-Type": []string{"application/json"}}
	var seq atomic.Uint64

	return func(t *vegeta.Target) error {
		if t == nil {
			return vegeta.ErrNilTarget
		}
		n := seq.Add(1)
		userID := fmt.Sprintf("load-user-%d", rand.Intn(visitors))

		claim := mode == "claim" || (mode == "mixed" && n%2 == 0)
		var (
			body []byte
			err  error
		)
		if claim {
			t.URL = baseURL + "/api/v1/claim"
			body, err = json.Marshal(claimPayload(userID, n))
		} else {
			t.URL = baseURL + "/api/v1/events/batch"
			body, err = json.Marshal(batchPayload(userID, batchSize))
		}
		if err != nil {
			return err
		}

		t.Method = http.MethodPost
		t.Body = body
		t.Header = header
		return nil
	}
}

func claimPayload(userID string, n uint64) map[string]interface{} {
	actions := []models.ActionType{
		models.ActionTypePageView,
		models.ActionTypeHeartbeat,
		models.ActionTypeHeartbeat,
		models.ActionTypePageLeave,
	}
	return map[string]interface{}{
		"user_id":     userID,
		"action_type": actions[n%uint64(len(actions))],
		"current_page": map[string]interface{}{
			"url":   fmt.Sprintf("https://example.com/page/%d", n%10),
			"title": "Load test",
		},
	}
}

func batchPayload(userID string, size int) map[string]interface{} {
	sessionID := "load-" + userID
	events := make([]map[string]interface{}, 0, size)
	now := time.Now().UTC()
	for i := 0; i < size; i++ {
		events = append(events, map[string]interface{}{
			"event_type": "page_view",
			"event_name": "page_view",
			"user_id":    userID,
			"session_id": sessionID,
			"metadata":   map[string]interface{}{"page_url": fmt.Sprintf("https://example.com/page/%d", i%5)},
			"timestamp":  now.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		})
	}
	return map[string]interface{}{"events": events}
}
