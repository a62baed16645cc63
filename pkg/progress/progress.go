// Package progress folds per-stage completion into one overall percentage.
package progress

import (
	"fmt"
	"math"
	"sync"
)

// Stage names a step of a pipeline run.
type Stage string

const (
	StageKeyDerivation Stage = "key_derivation"
	StageCompression   Stage = "compression"
	StageEncryption    Stage = "encryption"
	StageEncoding      Stage = "encoding"
	StageExtraction    Stage = "extraction"
	StageDecryption    Stage = "decryption"
	StageDecompression Stage = "decompression"
)

// Weight is the share of the overall operation one stage accounts for.
type Weight struct {
	Stage  Stage   `json:"stage" yaml:"stage" mapstructure:"stage"`
	Weight float64 `json:"weight" yaml:"weight" mapstructure:"weight"`
}

// Plan is an ordered weighting table. Stages run in the listed order.
type Plan []Weight

const weightTolerance = 1e-6

// maxPending is the highest value Report can emit; 100 belongs to Complete.
const maxPending = 99.9

// DefaultEncryptPlan weights the encrypt direction.
func DefaultEncryptPlan() Plan {
	return Plan{
		{StageKeyDerivation, 0.05},
		{StageCompression, 0.85},
		{StageEncryption, 0.05},
		{StageEncoding, 0.05},
	}
}

// DefaultDecryptPlan weights the decrypt direction.
func DefaultDecryptPlan() Plan {
	return Plan{
		{StageExtraction, 0.05},
		{StageKeyDerivation, 0.025},
		{StageDecryption, 0.025},
		{StageDecompression, 0.90},
	}
}

// Validate checks the weights are non-negative, stages are unique and the
// total is 1.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	seen := make(map[Stage]bool, len(p))
	var total float64
	for _, w := range p {
		if w.Stage == "" {
			return fmt.Errorf("plan has an unnamed stage")
		}
		if seen[w.Stage] {
			return fmt.Errorf("stage %s listed twice", w.Stage)
		}
		seen[w.Stage] = true
		if w.Weight < 0 || math.IsNaN(w.Weight) {
			return fmt.Errorf("stage %s has invalid weight %v", w.Stage, w.Weight)
		}
		total += w.Weight
	}
	if math.Abs(total-1) > weightTolerance {
		return fmt.Errorf("weights sum to %v, want 1", total)
	}
	return nil
}

// Overall maps a stage-local fraction onto the overall fraction in [0, 1]:
// the weights of every earlier stage plus this stage's share. Unknown
// stages map to 0.
func (p Plan) Overall(stage Stage, fraction float64) float64 {
	fraction = clamp(fraction)
	var before float64
	for _, w := range p {
		if w.Stage == stage {
			return clamp(before + w.Weight*fraction)
		}
		before += w.Weight
	}
	return 0
}

// Has reports whether stage is part of the plan.
func (p Plan) Has(stage Stage) bool {
	for _, w := range p {
		if w.Stage == stage {
			return true
		}
	}
	return false
}

// Func receives the overall percentage in [0, 100].
type Func func(percent float64)

// Tracker reports overall progress for one operation. Reported values never
// decrease, and Complete always ends on exactly 100. It is safe for
// concurrent use; the callback runs under the tracker's lock and must not
// call back into it.
type Tracker struct {
	plan Plan
	fn   Func

	mu      sync.Mutex
	current float64
	done    bool
}

// NewTracker returns a tracker for plan. fn may be nil.
func NewTracker(plan Plan, fn Func) *Tracker {
	return &Tracker{plan: plan, fn: fn}
}

// Report records that stage is fraction complete. Nothing is emitted unless
// overall progress increases.
func (t *Tracker) Report(stage Stage, fraction float64) {
	overall := math.Min(t.plan.Overall(stage, fraction)*100, maxPending)
	t.emit(overall)
}

// Stage returns a callback bound to stage, suitable as a codec progress
// hook.
func (t *Tracker) Stage(stage Stage) func(float64) {
	return func(fraction float64) { t.Report(stage, fraction) }
}

// Complete emits exactly 100.
func (t *Tracker) Complete() {
	t.emit(100)
}

// Percent returns the last emitted value.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Tracker) emit(percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || percent <= t.current {
		return
	}
	t.current = percent
	t.done = percent == 100
	if t.fn != nil {
		t.fn(percent)
	}
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
