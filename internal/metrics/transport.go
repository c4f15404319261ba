package metrics

import (
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and records backend request metrics.
type Transport struct {
	reg  *Registry
	next http.RoundTripper
}

// NewTransport instruments next, or http.DefaultTransport when next is nil.
func NewTransport(reg *Registry, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{reg: reg, next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.reg.InFlightInc()
	defer t.reg.InFlightDec()

	start := time.Now()

	resp, err := t.next.RoundTrip(req)

	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	t.reg.RecordRequest(req.Method, req.URL.Path, status, time.Since(start).Seconds())

	return resp, err
}
