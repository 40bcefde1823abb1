// Package eventstore records build lifecycle events in SQLite and projects
// them into a build history.
package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// Event types.
const (
	TypeBuildStarted    = "BuildStarted"
	TypeChangesDetected = "ChangesDetected"
	TypeUnitCompiled    = "UnitCompiled"
	TypeBuildCompleted  = "BuildCompleted"
	TypeBuildFailed     = "BuildFailed"
)

// Event is one recorded build lifecycle fact.
type Event struct {
	ID        int64           `json:"id,omitempty"`
	BuildID   string          `json:"build_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// BuildStarted is the payload of TypeBuildStarted.
type BuildStarted struct {
	Trigger string `json:"trigger"`
	BaseDir string `json:"base_dir"`
	Output  string `json:"output"`
}

// ChangesDetected is the payload of TypeChangesDetected.
type ChangesDetected struct {
	Units   int      `json:"units"`
	Changed []string `json:"changed"`
}

// UnitCompiled is the payload of TypeUnitCompiled.
type UnitCompiled struct {
	Source     string `json:"source"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildCompleted is the payload of TypeBuildCompleted.
type BuildCompleted struct {
	Compiled   int    `json:"compiled"`
	Output     string `json:"output"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildFailed is the payload of TypeBuildFailed.
type BuildFailed struct {
	Stage       string   `json:"stage"`
	Error       string   `json:"error"`
	Compiled    int      `json:"compiled"`
	FailedUnits []string `json:"failed_units,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// NewEvent marshals payload into an event stamped with the current time.
func NewEvent(buildID, eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.InternalError("failed to marshal event payload").WithCause(err).
			WithContext("build_id", buildID).
			WithContext("type", eventType).
			Build()
	}
	return Event{
		BuildID:   buildID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
