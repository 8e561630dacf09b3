package model

import (
	"encoding/json"
	"time"
)

// Record is a nested key-value data tree (user profile or project data).
type Record map[string]any

// ProjectInput is the caller-supplied description of a project.
type ProjectInput struct {
	Description string         `json:"description"`
	Address     string         `json:"address"`
	ProjectType string         `json:"project_type,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// AsRecord returns the project input as a Record for the project namespace.
func (p ProjectInput) AsRecord() Record {
	rec := Record{
		"description":  p.Description,
		"address":      p.Address,
		"project_type": p.ProjectType,
	}
	if p.Details != nil {
		rec["details"] = map[string]any(p.Details)
	}
	return rec
}

// RunKind distinguishes discovery runs from fill runs.
type RunKind string

const (
	RunKindDiscover RunKind = "discover"
	RunKindFill     RunKind = "fill"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted record of one discovery or fill request.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Status    RunStatus       `json:"status"`
	Input     json.RawMessage `json:"input"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
