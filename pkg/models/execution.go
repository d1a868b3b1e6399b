package models

import "time"

// ExecutionResult is the outcome of one whitelisted command execution.
type ExecutionResult struct {
	Success      bool   `json:"success"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ReturnCode   int    `json:"return_code"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Remote endpoint auth types.
const (
	AuthAPIKey = "api_key"
	AuthBearer = "bearer"
)

// RemoteEndpoint configures one remote metrics source.
type RemoteEndpoint struct {
	NodeID    string        `json:"node_id"`
	URL       string        `json:"url"`
	AuthType  string        `json:"auth_type"`
	AuthToken string        `json:"auth_token"`
	Timeout   time.Duration `json:"timeout"`
}
