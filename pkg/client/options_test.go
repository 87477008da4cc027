package client

import (
	"net/http"
	"testing"
	"time"
)

func TestWithHTTPClient(t *testing.T) {
	customClient := &http.Client{Timeout: 60 * time.Second}
	c := &Client{}

	WithHTTPClient(customClient)(c)
	if c.httpClient != customClient {
		t.Error("WithHTTPClient did not set custom HTTP client")
	}

	WithHTTPClient(nil)(c)
	if c.httpClient != customClient {
		t.Error("WithHTTPClient(nil) should keep the current client")
	}
}

func TestWithTimeout(t *testing.T) {
	c := &Client{httpClient: &http.Client{Timeout: time.Second}}

	WithTimeout(3 * time.Second)(c)
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", c.httpClient.Timeout)
	}

	WithTimeout(0)(c)
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("zero timeout should be ignored, got %v", c.httpClient.Timeout)
	}
}

func TestWithLogger(t *testing.T) {
	logger := &testLogger{}
	c := &Client{}

	WithLogger(logger)(c)
	if c.logger != logger {
		t.Error("WithLogger did not set custom logger")
	}
}

func TestWithRetryMax(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"positive value", 5, 5},
		{"zero value", 0, 0},
		{"negative value", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{retryMax: 3}
			WithRetryMax(tt.input)(c)
			if c.retryMax != tt.expected {
				t.Errorf("expected retryMax=%d, got %d", tt.expected, c.retryMax)
			}
		})
	}
}

func TestWithRetryWait(t *testing.T) {
	tests := []struct {
		name             string
		min, max         time.Duration
		wantMin, wantMax time.Duration
	}{
		{"valid range", time.Second, 10 * time.Second, time.Second, 10 * time.Second},
		{"max below min keeps max", time.Second, time.Millisecond, time.Second, 5 * time.Second},
		{"zero min ignored", 0, time.Minute, 500 * time.Millisecond, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{retryWaitMin: 500 * time.Millisecond, retryWaitMax: 5 * time.Second}
			WithRetryWait(tt.min, tt.max)(c)
			if c.retryWaitMin != tt.wantMin || c.retryWaitMax != tt.wantMax {
				t.Errorf("got min=%v max=%v, want min=%v max=%v", c.retryWaitMin, c.retryWaitMax, tt.wantMin, tt.wantMax)
			}
		})
	}
}
