// Package rules lets deployments customize how a detection candidate is
// chosen without recompiling: a small JavaScript hook receives the candidate
// list and returns the index to apply. The default selector takes the first
// candidate, matching detection preference order.
package rules

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/docsops/signflow/detect"
)

// Selector picks which candidate to apply from a non-empty list. Returning
// an index outside [0, len) is an error.
type Selector interface {
	Select(ctx context.Context, candidates []detect.Candidate) (int, error)
}

// FirstCandidate selects index 0, the detection engine's preferred result.
type FirstCandidate struct{}

func (FirstCandidate) Select(_ context.Context, candidates []detect.Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, fmt.Errorf("select candidate: empty list")
	}
	return 0, nil
}

// JSSelector evaluates a user-supplied script against the candidate list.
// The script sees a global `candidates` array of objects with page, x, y,
// width, height and reason fields, and must evaluate to the chosen index.
//
// Example:
//
//	candidates.findIndex(c => c.reason.includes("signature line"))
type JSSelector struct {
	script string
}

// NewJSSelector compiles nothing up front; the script is evaluated per call
// on a fresh runtime so selections cannot leak state into each other.
func NewJSSelector(script string) *JSSelector {
	return &JSSelector{script: script}
}

func (s *JSSelector) Select(ctx context.Context, candidates []detect.Candidate) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("select candidate: empty list")
	}

	vm := goja.New()
	jsCands := make([]map[string]interface{}, len(candidates))
	for i, c := range candidates {
		jsCands[i] = map[string]interface{}{
			"page":   c.Page,
			"x":      c.X,
			"y":      c.Y,
			"width":  c.Width,
			"height": c.Height,
			"reason": c.Reason,
		}
	}
	if err := vm.Set("candidates", jsCands); err != nil {
		return 0, fmt.Errorf("select candidate: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	defer vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := vm.RunString(s.script)
	if err != nil {
		if interrupted, ok := err.(*goja.InterruptedError); ok {
			if cause := interrupted.Unwrap(); cause != nil {
				return 0, cause
			}
			return 0, context.Canceled
		}
		return 0, fmt.Errorf("select candidate: %w", err)
	}

	idx := int(val.ToInteger())
	if idx < 0 || idx >= len(candidates) {
		return 0, fmt.Errorf("select candidate: script returned index %d for %d candidates", idx, len(candidates))
	}
	return idx, nil
}
