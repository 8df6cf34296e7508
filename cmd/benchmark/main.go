// benchmark drives the claim lifecycle end to end against a running API:
// each iteration creates a draft, submits it, and optionally walks it to a
// terminal status. Useful for sizing the ledger confirmation path under load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	fullWalk    bool
)

// Metrics
var (
	totalOps   uint64
	drafted    uint64
	submitted  uint64
	settled    uint64
	conflicts  uint64
	failOther  uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.BoolVar(&fullWalk, "full", false, "Walk each claim to a terminal status")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Full walk: %v", concurrency, duration, fullWalk)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			worker(ctx)
			return nil
		})
	}
	g.Wait()
	printResults(time.Since(start))
}

func worker(ctx context.Context) {
	client := &http.Client{Timeout: 90 * time.Second}
	actor := uuid.NewString()

	for ctx.Err() == nil {
		atomic.AddUint64(&totalOps, 1)

		claimID, ok := createDraft(ctx, client, actor)
		if !ok {
			continue
		}
		atomic.AddUint64(&drafted, 1)

		if !post(ctx, client, actor, claimID, "submit", nil) {
			continue
		}
		atomic.AddUint64(&submitted, 1)

		if !fullWalk {
			continue
		}
		steps := []map[string]any{
			{"path": "ack", "body": map[string]any{"reference_number": "BENCH-" + uuid.NewString()[:8]}},
			{"path": "status", "body": map[string]any{"new_status": "InReview"}},
			{"path": "status", "body": map[string]any{"new_status": "Approved"}},
			{"path": "status", "body": map[string]any{"new_status": "Paid"}},
		}
		done := true
		for _, s := range steps {
			if !post(ctx, client, actor, claimID, s["path"].(string), s["body"].(map[string]any)) {
				done = false
				break
			}
		}
		if done {
			atomic.AddUint64(&settled, 1)
		}
	}
}

func createDraft(ctx context.Context, client *http.Client, actor string) (string, bool) {
	payload := map[string]any{
		"policy_id": uuid.NewString(),
		"incident": map[string]any{
			"type":           "Accident",
			"date":           time.Now().AddDate(0, 0, -1).Format("2006-01-02"),
			"details":        "benchmark incident",
			"amount_claimed": 1200,
		},
	}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, "POST", targetURL+"/api/v1/claims", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	return created.ID, true
}

func post(ctx context.Context, client *http.Client, actor, claimID, action string, payload map[string]any) bool {
	var buf bytes.Buffer
	if payload != nil {
		json.NewEncoder(&buf).Encode(payload)
	}
	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/api/v1/claims/%s/%s", targetURL, claimID, action), &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return false
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return true
	case http.StatusConflict:
		atomic.AddUint64(&conflicts, 1)
		return false
	default:
		atomic.AddUint64(&failOther, 1)
		return false
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalOps)

	results := map[string]interface{}{
		"duration_sec":     d.Seconds(),
		"total_iterations": total,
		"throughput_cps":   float64(total) / d.Seconds(),
		"drafted":          atomic.LoadUint64(&drafted),
		"submitted":        atomic.LoadUint64(&submitted),
		"settled":          atomic.LoadUint64(&settled),
		"conflicts":        atomic.LoadUint64(&conflicts),
		"errors":           atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)
}
