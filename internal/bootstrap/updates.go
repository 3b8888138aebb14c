package bootstrap

import (
	"fmt"

	"github.com/desertthunder/spotenv/internal/models"
)

// ProgressUpdate represents a progress event during a bootstrap.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Bootstrap phase enumeration
type Phase int

const (
	Creating Phase = iota
	Activating
	Installing
	Complete
	Failed
)

func (p Phase) String() string {
	switch p {
	case Creating:
		return "create_environment"
	case Activating:
		return "activate_environment"
	case Installing:
		return "install_dependencies"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// sendProgress sends update without blocking; a full or nil channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func creatingUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Creating,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating environment at %s...", path),
	}
}

func createdUpdate(env *Environment) ProgressUpdate {
	msg := fmt.Sprintf("Created environment at %s", env.Path)
	if env.Reused {
		msg = fmt.Sprintf("Reusing existing environment at %s", env.Path)
	}
	return ProgressUpdate{Phase: Creating, Step: 1, Total: 1, Message: msg, Data: env}
}

func activatingUpdate(env *Environment) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Activating,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Activating environment (%s)...", env.Platform),
	}
}

func installingUpdate(step, total int, dep models.Dependency) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Installing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Installing %s...", step, total, dep.Spec()),
	}
}

func installedUpdate(step, total int, dep models.Dependency) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Installing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, dep.Spec()),
		Data:    dep,
	}
}

func installFailedUpdate(step, total int, dep models.Dependency, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Installing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, dep.Spec(), err),
		Data:    dep,
	}
}

func completeUpdate(res *Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Environment ready with %d packages", len(res.Installs)),
		Data:    res,
	}
}

func failedUpdate(res *Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Bootstrap failed: %v", res.Err),
		Data:    res,
	}
}
