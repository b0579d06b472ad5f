package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/models"
)

// PanicType is the error type recorded for recovered panics.
const PanicType = "panic (Fatal)"

const maxStackDepth = 64

// StackFrames returns the caller's stack. skip 0 starts at the function that
// called StackFrames. Frames inside the Go runtime are left out.
func StackFrames(skip int) []models.StackFrame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []models.StackFrame
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, toStackFrame(frame))
		}
		if !more {
			break
		}
	}
	return out
}

// toStackFrame splits "pkg/path.(*Type).Method" into class and function.
func toStackFrame(f runtime.Frame) models.StackFrame {
	sf := models.StackFrame{Function: f.Function, File: f.File, Line: f.Line}

	name := f.Function
	if slash := strings.LastIndex(name, "/"); slash >= 0 {
		name = name[slash+1:]
	}
	parts := strings.Split(name, ".")
	if len(parts) >= 3 && strings.HasPrefix(parts[1], "(") {
		sf.Class = strings.Trim(parts[1], "(*)")
		sf.Function = strings.Join(parts[2:], ".")
	} else if len(parts) >= 2 {
		sf.Function = strings.Join(parts[1:], ".")
	}
	return sf
}

// CapturePanic records a recovered panic as a fatal event.
func (c *Capturer) CapturePanic(ctx context.Context, recovered any, frames []models.StackFrame) Result {
	ev := PanicEvent(recovered, frames)
	ev.Env = &models.EnvFacts{RuntimeVersion: strings.TrimPrefix(runtime.Version(), "go")}
	return c.Capture(ctx, ev)
}

// Recoverer is HTTP middleware that captures handler panics and answers 500.
// http.ErrAbortHandler is re-panicked untouched.
func (c *Capturer) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			c.CapturePanic(r.Context(), rec, StackFrames(1))
			c.logger.Error("Recovered panic in HTTP handler",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "internal_error",
				"message": "Internal server error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// Go runs fn in a new goroutine and captures a panic instead of crashing the process.
func (c *Capturer) Go(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				c.CapturePanic(ctx, rec, StackFrames(1))
				c.logger.Error("Recovered panic in goroutine", zap.Any("panic", rec))
			}
		}()
		fn(ctx)
	}()
}
