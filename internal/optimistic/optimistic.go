// Package optimistic models apply-locally, confirm-on-server, roll-back-on-error
// mutations as an explicit three-phase operation.
package optimistic

import "context"

// Op is a three-phase mutation. Apply updates local state immediately,
// Confirm performs the remote write, Compensate undoes Apply when Confirm
// fails. Apply and Compensate must not fail.
type Op struct {
	Apply      func()
	Confirm    func(ctx context.Context) error
	Compensate func()
}

// Run executes the operation. On Confirm failure the local change is rolled
// back and the error returned to the caller.
func Run(ctx context.Context, op Op) error {
	if op.Apply != nil {
		op.Apply()
	}
	if op.Confirm == nil {
		return nil
	}
	if err := op.Confirm(ctx); err != nil {
		if op.Compensate != nil {
			op.Compensate()
		}
		return err
	}
	return nil
}
