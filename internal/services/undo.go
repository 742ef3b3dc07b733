package services

import (
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-xattrfs/internal/stats"
)

type undoStep struct {
	name string
	fn   func() error
}

// undoStack records how to reverse each committed step of a set. The
// steps are reversed last first. A step that cannot be reversed leaves
// global state inconsistent, so its failure is fatal.
type undoStack struct {
	steps []undoStep
	sugar *zap.SugaredLogger
}

func newUndoStack(sugar *zap.SugaredLogger) *undoStack {
	return &undoStack{sugar: sugar}
}

func (u *undoStack) push(name string, fn func() error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

func (u *undoStack) run() {
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		stats.XattrRollbackCounter.WithLabelValues(step.name).Inc()
		if err := step.fn(); err != nil {
			u.sugar.Fatalw("undo of committed attribute step failed", "step", step.name, "error", err)
		}
	}
	u.steps = nil
}
