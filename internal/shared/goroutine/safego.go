// Package goroutine provides utilities for safely launching goroutines with panic recovery.
package goroutine

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

// SafeGo launches a goroutine with panic recovery. If the goroutine panics,
// the panic is caught and logged with stack trace instead of crashing the process.
func SafeGo(log logger.Interface, name string, fn func()) {
	go run(log, name, fn)
}

// SafeAfter runs fn on its own goroutine once d has elapsed, with the same
// panic recovery as SafeGo. The returned timer can be stopped to cancel.
func SafeAfter(log logger.Interface, name string, d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		run(log, name, fn)
	})
}

func run(log logger.Interface, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("goroutine panicked",
				"goroutine", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
