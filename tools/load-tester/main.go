package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type userColumn struct {
	ColumnID    string `json:"column_id"`
	StringValue string `json:"string_value"`
}

type leadPayload struct {
	LeadID         string       `json:"lead_id"`
	APIVersion     string       `json:"api_version"`
	FormID         int64        `json:"form_id"`
	CampaignID     int64        `json:"campaign_id"`
	GoogleKey      string       `json:"google_key"`
	IsTest         bool         `json:"is_test"`
	UserColumnData []userColumn `json:"user_column_data"`
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/api/webhook?id=", "Webhook URL returned by a form claim")
	googleKey := flag.String("google-key", "", "google_key returned by the same claim")
	formID := flag.Int64("form-id", 1, "Claimed form id")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, throttledCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				body, err := json.Marshal(leadPayload{
					LeadID:     uuid.NewString(),
					APIVersion: "1.0",
					FormID:     *formID,
					CampaignID: 1,
					GoogleKey:  *googleKey,
					IsTest:     true,
					UserColumnData: []userColumn{
						{ColumnID: "FULL_NAME", StringValue: "Load Tester"},
						{ColumnID: "EMAIL", StringValue: "load@example.com"},
					},
				})
				if err != nil {
					continue
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(body))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				switch resp.StatusCode {
				case http.StatusOK:
					successCount.Add(1)
				case http.StatusTooManyRequests:
					throttledCount.Add(1)
				default:
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	totalRequests := successCount.Load() + throttledCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Throttled (429): %d", throttledCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
