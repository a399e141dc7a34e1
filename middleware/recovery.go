package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"crypto_tracker/utils"
)

// PanicError carries a recovered panic value and its stack.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			utils.Logger.Errorw("Panic recovered",
				"error", r,
				"stack", string(stack))
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	fn()
	return nil
}

// RecoverHandler answers a panicking request with a JSON 500.
func RecoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := Recover(func() { next.ServeHTTP(w, r) })
		if err == nil {
			return
		}
		// net/http relies on this sentinel to abort the response silently.
		var pe *PanicError
		if errors.As(err, &pe) && pe.Value == http.ErrAbortHandler {
			panic(pe.Value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "Internal Server Error",
			"message": err.Error(),
		})
	})
}
