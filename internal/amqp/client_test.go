package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"taxcalc/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{70, 30 * time.Second}, // no shift overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"closed connection", errors.New("connection closed"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"wrapped", fmt.Errorf("publish: %w", errors.New("connection closed")), true},
		{"other error", errors.New("invalid routing key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCircuitBreaker(t *testing.T) {
	client := &Client{url: "amqp://test"}

	if client.isCircuitOpen() {
		t.Fatal("new client should have a closed circuit")
	}

	for i := 0; i < maxFailures-1; i++ {
		client.recordFailure()
	}
	if client.isCircuitOpen() {
		t.Errorf("circuit opened after %d failures, want %d", maxFailures-1, maxFailures)
	}

	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Fatal("circuit should be open after max failures")
	}
	if state := atomic.LoadInt32(&client.state); state != StateOpen {
		t.Errorf("state = %d, want StateOpen", state)
	}

	client.recordSuccess()
	if client.isCircuitOpen() {
		t.Error("circuit should close after a success")
	}
	if n := atomic.LoadInt64(&client.failureCount); n != 0 {
		t.Errorf("failureCount = %d after success, want 0", n)
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	client := &Client{url: "amqp://test"}
	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)

	if client.isCircuitOpen() {
		t.Fatal("circuit should let a trial request through after openTimeout")
	}
	if state := atomic.LoadInt32(&client.state); state != StateHalfOpen {
		t.Fatalf("state = %d, want StateHalfOpen", state)
	}

	// A failed trial opens the circuit again straight away.
	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Error("failure while half-open should reopen the circuit")
	}
}

func TestPublishWithOpenCircuit(t *testing.T) {
	client := &Client{url: "amqp://test"}
	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()

	msg := NewCalculationRequest("req-1", 2018, core.FromPounds(43_500))
	err := client.PublishCalculationRequest(context.Background(), msg)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("unexpected error text %q", err)
	}
}

func TestPublishWithCancelledContext(t *testing.T) {
	client := &Client{url: "amqp://test"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := NewCalculationRequest("req-1", 2018, core.FromPounds(43_500))
	if err := client.PublishCalculationRequest(ctx, msg); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPublishWithoutConnectionRecordsFailure(t *testing.T) {
	client := &Client{url: "amqp://127.0.0.1:1/"}

	msg := NewCalculationRequest("req-1", 2018, core.FromPounds(43_500))
	if err := client.PublishCalculationRequest(context.Background(), msg); err == nil {
		t.Fatal("expected an error without a broker")
	}
	if n := atomic.LoadInt64(&client.failureCount); n != 1 {
		t.Errorf("failureCount = %d, want 1", n)
	}
}
