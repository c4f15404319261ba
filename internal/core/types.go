package core

import (
	"encoding/json"
	"strings"
	"time"
)

// Credentials are the values of an open signup or login form.
type Credentials struct {
	Username string
	Email    string // signup only
	Password string
}

// IsZero reports whether no field is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// Session is the authenticated identity of the current user.
type Session struct {
	Token    string
	LoggedIn bool
	Username string
}

// AnonymousSession returns the logged-out session.
func AnonymousSession() Session {
	return Session{}
}

// LoggedInSession returns the session for a successful login or restore.
// An empty token yields the anonymous session.
func LoggedInSession(username, token string) Session {
	if token == "" {
		return AnonymousSession()
	}
	return Session{Token: token, LoggedIn: true, Username: username}
}

// IsValid checks the token/logged-in invariant.
func (s Session) IsValid() bool {
	return s.LoggedIn == (s.Token != "")
}

// ParseCatalog splits a newline-delimited strategy listing, dropping blank
// lines. Order is preserved and names are kept as received.
func ParseCatalog(body string) []string {
	names := []string{}
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		names = append(names, line)
	}
	return names
}

// RunStatus is the lifecycle state of a backtest run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// BacktestRequest is the body sent to the backtest endpoint.
type BacktestRequest struct {
	Strategy  string `json:"strategy"`
	Timerange string `json:"timerange"`
}

// BacktestRun is the single live backtest execution.
type BacktestRun struct {
	ID         string          `json:"id,omitempty"`
	Status     RunStatus       `json:"status"`
	Strategy   string          `json:"strategy,omitempty"`
	Timerange  string          `json:"timerange,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Duration returns how long a finished run took, zero otherwise.
func (r BacktestRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
