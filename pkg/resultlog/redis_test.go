package resultlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := Config{Address: mr.Addr(), TTL: 60}
	p := &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		config: cfg,
	}
	return p, mr
}

func TestPublishSuccess(t *testing.T) {
	p, mr := newTestPublisher(t)
	defer p.Close()

	started := time.Now().Add(-2 * time.Second)
	result := ImportResult{
		RunID:         "run-42",
		FileName:      "cases.csv",
		Stage:         "deploy",
		StartedAt:     started,
		FinishedAt:    started.Add(2 * time.Second),
		RowsValidated: 100,
		RowsDeployed:  98,
	}

	if err := p.Publish(context.Background(), result, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	raw, err := mr.Get("caseimport:run:run-42:state")
	if err != nil {
		t.Fatalf("state key not set: %v", err)
	}

	var stored ImportResult
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored payload is not valid JSON: %v", err)
	}
	if stored.Status != "success" {
		t.Errorf("Status = %q, want success", stored.Status)
	}
	if stored.Error != nil {
		t.Errorf("Error should be nil on success, got %v", *stored.Error)
	}
	if stored.DurationMs != 2000 {
		t.Errorf("DurationMs = %d, want 2000", stored.DurationMs)
	}
	if stored.RowsDeployed != 98 {
		t.Errorf("RowsDeployed = %d, want 98", stored.RowsDeployed)
	}

	ttl := mr.TTL("caseimport:run:run-42:state")
	if ttl != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", ttl)
	}
}

func TestPublishFailure(t *testing.T) {
	p, mr := newTestPublisher(t)
	defer p.Close()

	result := ImportResult{
		RunID:      "run-7",
		Stage:      "validation",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}

	if err := p.Publish(context.Background(), result, errors.New("max retry attempts exceeded")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	raw, err := mr.Get("caseimport:run:run-7:state")
	if err != nil {
		t.Fatalf("state key not set: %v", err)
	}

	var stored ImportResult
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored payload is not valid JSON: %v", err)
	}
	if stored.Status != "failed" {
		t.Errorf("Status = %q, want failed", stored.Status)
	}
	if stored.Error == nil || *stored.Error != "max retry attempts exceeded" {
		t.Errorf("Error = %v, want the execution error", stored.Error)
	}
}
