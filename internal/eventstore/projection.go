package eventstore

import (
	"context"
	"sort"
	"time"
)

// Build statuses in a BuildSummary.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// BuildSummary is the read model of one build.
type BuildSummary struct {
	BuildID     string        `json:"build_id"`
	Trigger     string        `json:"trigger,omitempty"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Units       int           `json:"units"`
	Changed     int           `json:"changed"`
	Compiled    int           `json:"compiled"`
	FailedUnits []string      `json:"failed_units,omitempty"`
	ErrorStage  string        `json:"error_stage,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Project folds events into build summaries, newest build first. Events whose
// payload does not decode only contribute their type and timestamp.
func Project(events []Event) []*BuildSummary {
	builds := make(map[string]*BuildSummary)
	var order []*BuildSummary

	for _, e := range events {
		if e.BuildID == "" {
			continue
		}
		s, ok := builds[e.BuildID]
		if !ok {
			s = &BuildSummary{BuildID: e.BuildID, Status: StatusRunning, StartedAt: e.Timestamp}
			builds[e.BuildID] = s
			order = append(order, s)
		}
		apply(s, e)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].StartedAt.After(order[j].StartedAt)
	})
	return order
}

func apply(s *BuildSummary, e Event) {
	switch e.Type {
	case TypeBuildStarted:
		s.StartedAt = e.Timestamp
		var p BuildStarted
		if e.Decode(&p) == nil {
			s.Trigger = p.Trigger
		}

	case TypeChangesDetected:
		var p ChangesDetected
		if e.Decode(&p) == nil {
			s.Units = p.Units
			s.Changed = len(p.Changed)
		}

	case TypeUnitCompiled:
		var p UnitCompiled
		if e.Decode(&p) == nil && p.ExitCode == 0 {
			s.Compiled++
		}

	case TypeBuildCompleted:
		finish(s, e.Timestamp, StatusSucceeded)
		var p BuildCompleted
		if e.Decode(&p) == nil {
			s.Compiled = p.Compiled
			s.Duration = time.Duration(p.DurationMS) * time.Millisecond
		}

	case TypeBuildFailed:
		finish(s, e.Timestamp, StatusFailed)
		var p BuildFailed
		if e.Decode(&p) == nil {
			s.ErrorStage = p.Stage
			s.Error = p.Error
			s.Compiled = p.Compiled
			s.FailedUnits = p.FailedUnits
			s.Duration = time.Duration(p.DurationMS) * time.Millisecond
		}
	}
}

func finish(s *BuildSummary, at time.Time, status string) {
	s.CompletedAt = &at
	s.Duration = at.Sub(s.StartedAt)
	s.Status = status
}

// History loads the newest limit builds from store.
func History(ctx context.Context, store Store, limit int) ([]*BuildSummary, error) {
	events, err := store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return Project(events), nil
}
