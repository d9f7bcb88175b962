// Package loadtest drives concurrent registrations against a running server
// and checks that the committed count never exceeds the event's capacity.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config shapes one contention run. Users is the number of distinct
// authenticated accounts fired at the same event at once.
type Config struct {
	BaseURL  string
	Users    int
	Capacity int
	Timeout  time.Duration
}

// Statistics aggregates the per-request outcomes of a run.
type Statistics struct {
	mu sync.Mutex

	Committed  int
	Full       int
	Rejected   int
	Errors     int
	Durations  []time.Duration
	FinalCount int
	Capacity   int
}

type Tester struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Tester {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Tester{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Users,
				MaxIdleConnsPerHost: cfg.Users,
			},
		},
	}
}

// Run signs up one organizer plus cfg.Users attendees, publishes an event
// with cfg.Capacity seats, then fires all registrations concurrently.
func (t *Tester) Run(ctx context.Context) (*Statistics, error) {
	organizer, err := t.signup(ctx, "organizer")
	if err != nil {
		return nil, fmt.Errorf("signup organizer: %w", err)
	}

	eventID, err := t.createEvent(ctx, organizer)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	tokens := make([]string, t.cfg.Users)
	for i := range tokens {
		token, err := t.signup(ctx, fmt.Sprintf("attendee-%d", i))
		if err != nil {
			return nil, fmt.Errorf("signup attendee %d: %w", i, err)
		}
		tokens[i] = token
	}

	stats := &Statistics{Capacity: t.cfg.Capacity}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			<-start
			t.register(ctx, eventID, token, stats)
		}(token)
	}
	close(start)
	wg.Wait()

	final, err := t.currentCount(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("read final count: %w", err)
	}
	stats.FinalCount = final
	return stats, nil
}

func (t *Tester) signup(ctx context.Context, name string) (string, error) {
	suffix := time.Now().UnixNano()
	payload := map[string]string{
		"name":     name,
		"email":    fmt.Sprintf("%s-%d@loadtest.gatherly.live", name, suffix),
		"password": "loadtest password 1",
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := t.postJSON(ctx, "/api/v1/auth/signup", "", payload, http.StatusCreated, &response); err != nil {
		return "", err
	}
	if response.Token == "" {
		return "", fmt.Errorf("signup returned no token")
	}
	return response.Token, nil
}

func (t *Tester) createEvent(ctx context.Context, token string) (string, error) {
	payload := map[string]any{
		"title":        "Contention probe",
		"description":  "Synthetic event used to exercise concurrent registration.",
		"location":     "Load test arena",
		"scheduled_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"capacity":     t.cfg.Capacity,
		"status":       "published",
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := t.postJSON(ctx, "/api/v1/events", token, payload, http.StatusCreated, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("event create returned no id")
	}
	return response.ID, nil
}

func (t *Tester) register(ctx context.Context, eventID, token string, stats *Statistics) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/api/v1/events/"+eventID+"/register", nil)
	if err != nil {
		stats.recordError()
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := t.client.Do(req)
	if err != nil {
		stats.recordError()
		return
	}
	defer res.Body.Close()

	var body struct {
		Type string `json:"type"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)

	stats.record(res.StatusCode, body.Type, time.Since(start))
}

func (t *Tester) currentCount(ctx context.Context, eventID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/api/v1/events/"+eventID, nil)
	if err != nil {
		return 0, err
	}

	res, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	var body struct {
		CurrentCount int `json:"current_count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.CurrentCount, nil
}

func (t *Tester) postJSON(ctx context.Context, path, token string, payload any, wantStatus int, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		return fmt.Errorf("%s: unexpected status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (s *Statistics) record(status int, problemType string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Durations = append(s.Durations, duration)
	switch {
	case status == http.StatusOK:
		s.Committed++
	case status == http.StatusBadRequest && strings.HasSuffix(problemType, "event-full"):
		s.Full++
	case status >= 400 && status < 500:
		s.Rejected++
	default:
		s.Errors++
	}
}

func (s *Statistics) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
}

// Oversold reports whether more registrations committed than seats exist.
// This failing is the whole point of the probe.
func (s *Statistics) Oversold() bool {
	return s.Committed > s.Capacity || s.FinalCount > s.Capacity
}

func (s *Statistics) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Registrations: %d committed, %d full, %d rejected, %d errors\n",
		s.Committed, s.Full, s.Rejected, s.Errors)
	fmt.Fprintf(&b, "Final count: %d / %d capacity\n", s.FinalCount, s.Capacity)

	if len(s.Durations) > 0 {
		var total time.Duration
		max := s.Durations[0]
		for _, d := range s.Durations {
			total += d
			if d > max {
				max = d
			}
		}
		fmt.Fprintf(&b, "Latency: avg %s, max %s\n", total/time.Duration(len(s.Durations)), max)
	}

	if s.Oversold() {
		fmt.Fprintf(&b, "RESULT: OVERSOLD (committed %d, final %d, capacity %d)\n", s.Committed, s.FinalCount, s.Capacity)
	} else {
		fmt.Fprintf(&b, "RESULT: OK, capacity held\n")
	}
	return b.String()
}
