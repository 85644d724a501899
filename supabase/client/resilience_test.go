package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCircuitBreaker_AllowClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if cb.State() != CircuitClosed {
		t.Fatalf("initial State() = %v, want %v", cb.State(), CircuitClosed)
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() error in closed state: %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("test error"))
	}
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitClosed)
	}
}

func TestCircuitBreaker_OpenOnFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		cb.RecordFailure(errors.New("test error"))
	}

	if cb.State() != CircuitOpen {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
	})

	cb.RecordFailure(errors.New("error 1"))
	cb.RecordFailure(errors.New("error 2"))
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), CircuitOpen)
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() error after timeout: %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitHalfOpen)
	}
}

func TestCircuitBreaker_CloseFromHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.RecordFailure(errors.New("error 1"))
	cb.RecordFailure(errors.New("error 2"))
	time.Sleep(20 * time.Millisecond)
	cb.Allow()

	cb.RecordSuccess()
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitClosed)
	}
}

func TestCircuitBreaker_ReopenFromHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.RecordFailure(errors.New("error 1"))
	cb.RecordFailure(errors.New("error 2"))
	time.Sleep(20 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure(errors.New("error in half-open"))

	if cb.State() != CircuitOpen {
		t.Errorf("State() = %v, want %v", cb.State(), CircuitOpen)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var changes []CircuitState

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		OnStateChange: func(from, to CircuitState) {
			mu.Lock()
			changes = append(changes, to)
			mu.Unlock()
		},
	})

	cb.RecordFailure(errors.New("error 1"))
	cb.RecordFailure(errors.New("error 2"))

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(changes) == 0 || changes[0] != CircuitOpen {
		t.Errorf("state changes = %v, want transition to open", changes)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			cb.Allow()
		}()
		go func() {
			defer wg.Done()
			cb.RecordSuccess()
		}()
		go func() {
			defer wg.Done()
			cb.RecordFailure(errors.New("test"))
		}()
	}

	wg.Wait()
}

func TestResilientClient_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	}))
	defer server.Close()

	client := NewResilientClient(ResilientClientConfig{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestResilientClient_RetryOnServerError(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewResilientClient(ResilientClientConfig{
		RetryConfig: RetryConfig{
			MaxRetries:           3,
			InitialBackoff:       10 * time.Millisecond,
			MaxBackoff:           100 * time.Millisecond,
			BackoffMultiplier:    2.0,
			RetryableStatusCodes: []int{http.StatusServiceUnavailable},
		},
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := atomic.LoadInt32(&attempts); got < 3 {
		t.Errorf("attempts = %d, want >= 3", got)
	}
}

func TestResilientClient_CircuitOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewResilientClient(ResilientClientConfig{
		RetryConfig: RetryConfig{
			MaxRetries:           0,
			RetryableStatusCodes: []int{http.StatusServiceUnavailable},
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          1 * time.Second,
		},
	})

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", server.URL, nil)
		client.Do(req)
	}

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := client.Do(req)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do() error = %v, want ErrCircuitOpen", err)
	}
}

func TestResilientClient_Metrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewResilientClient(ResilientClientConfig{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", server.URL, nil)
		resp, _ := client.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
	}

	metrics := client.Metrics()
	if metrics["total_requests"] != 5 {
		t.Errorf("total_requests = %d, want 5", metrics["total_requests"])
	}
	if metrics["success_requests"] != 5 {
		t.Errorf("success_requests = %d, want 5", metrics["success_requests"])
	}
}

func TestResilientClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewResilientClient(ResilientClientConfig{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Error("Do() should error on context cancellation")
	}
}

func TestResilientClient_HTTPClientWrapper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc := NewResilientClient(ResilientClientConfig{
		RetryConfig:          DefaultRetryConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	})

	resp, err := rc.HTTPClient().Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	resp.Body.Close()

	if rc.Metrics()["total_requests"] != 1 {
		t.Errorf("total_requests = %d, want 1", rc.Metrics()["total_requests"])
	}
}

func TestStatusError_Error(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusServiceUnavailable}
	if err.Error() != "Service Unavailable" {
		t.Errorf("Error() = %s, want Service Unavailable", err.Error())
	}
}

func BenchmarkCircuitBreaker_Allow(b *testing.B) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Allow()
	}
}
