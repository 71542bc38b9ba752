package observability

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and its stack
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover converts a panic into a *PanicError stored in errp. It must be
// deferred directly:
//
//	defer observability.Recover(logger, &err)
func Recover(logger *Logger, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	perr := &PanicError{Value: r, Stack: debug.Stack()}
	if logger != nil {
		logger.WithFields(map[string]interface{}{
			"panic": fmt.Sprint(r),
			"stack": string(perr.Stack),
		}).Error("Recovered from panic")
	}
	if errp != nil {
		*errp = perr
	}
}
