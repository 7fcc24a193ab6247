package scope

import (
	"fmt"
	"runtime"
)

// PanicError wraps a panic recovered from a job together with the
// goroutine stack captured at the point of the panic. Activate returns
// it as an ordinary error instead of crashing the executing worker.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns the panic value followed by the captured stack.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

func capturePanic(v any) *PanicError {
	// 8 KiB covers most stacks; runtime.Stack truncates gracefully.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}
