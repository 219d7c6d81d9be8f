package st2

import (
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
)

// AliasExecutionRequest asks the API to run the action behind a matched alias.
type AliasExecutionRequest struct {
	Name              string          `json:"name"`
	Format            string          `json:"format"`
	Command           string          `json:"command"`
	User              string          `json:"user"`
	SourceChannel     string          `json:"source_channel"`
	SourceContext     json.RawMessage `json:"source_context,omitempty"`
	NotificationRoute string          `json:"notification_route"`
}

// Execution identifies a remote execution.
type Execution struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// AliasRef is the alias echoed back with an execution result.
type AliasRef struct {
	Name string       `json:"name,omitempty"`
	Ack  *aliases.Ack `json:"ack,omitempty"`
}

// AliasExecutionResult is the success envelope of an alias execution.
type AliasExecutionResult struct {
	Execution   *Execution `json:"execution"`
	ActionAlias *AliasRef  `json:"actionalias,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// ExecutionID returns the execution id, or "" when absent.
func (r *AliasExecutionResult) ExecutionID() string {
	if r == nil || r.Execution == nil {
		return ""
	}
	return r.Execution.ID
}

// Ack returns the alias ack settings echoed by the API, if any.
func (r *AliasExecutionResult) Ack() *aliases.Ack {
	if r == nil || r.ActionAlias == nil {
		return nil
	}
	return r.ActionAlias.Ack
}

// ExecutionRequest creates a raw action execution.
type ExecutionRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Token is an auth token issued by the auth service.
type Token struct {
	Token  string    `json:"token"`
	User   string    `json:"user,omitempty"`
	Expiry time.Time `json:"expiry"`
}
