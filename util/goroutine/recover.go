// Package goroutine converts worker panics into errors so one bad record cannot take
// down a long-running search.
package goroutine

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

const stackBufferSize = 4096

// PanicError is returned in place of a recovered panic
type PanicError struct {
	Worker string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Worker, e.Value)
}

// Recover must be deferred directly. It turns a panic into a *PanicError stored in *errp
// and logs it with the stack.
func Recover(name string, logger *zap.SugaredLogger, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, stackBufferSize)
	n := runtime.Stack(buf, false)
	perr := &PanicError{Worker: name, Value: r, Stack: string(buf[:n])}

	if logger != nil {
		logger.Errorw("Worker panic recovered", "worker", name, "panic", r, "stack", perr.Stack)
	}
	if errp != nil {
		*errp = perr
	}
}

// Safe wraps fn so that a panic surfaces as its error return
func Safe(name string, logger *zap.SugaredLogger, fn func() error) func() error {
	return func() (err error) {
		defer Recover(name, logger, &err)
		return fn()
	}
}
