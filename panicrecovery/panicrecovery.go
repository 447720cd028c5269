package panicrecovery

import (
	"context"
	"fmt"
	"runtime/debug"

	lambdamiddlewareutils "github.com/niko-dunixi/lambdamiddleware-utils"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PanicError is returned in place of a result when a downstream link panics.
type PanicError struct {
	RecoveredError error  `json:"recoveredError,omitempty"`
	RecoveredValue any    `json:"recoveredValue,omitempty"`
	Stack          string `json:"stack,omitempty"`
}

func (err *PanicError) Error() string {
	if err.RecoveredError != nil {
		return fmt.Sprintf("a panic occurred with an error: %v", err.RecoveredError)
	} else if err.RecoveredValue != nil {
		return fmt.Sprintf("a panic occurred with value: %v", err.RecoveredValue)
	} else {
		return "a panic occurred from indeterminate cause"
	}
}

func (err *PanicError) Unwrap() error {
	return err.RecoveredError
}

// RecoverAction produces the result of an invocation whose downstream chain panicked.
type RecoverAction[E, R any] func(ctx context.Context, event E, lc lambdamiddlewareutils.Context, recoverValue any, stack []byte) (R, error)

// Middleware that recovers from a panic anywhere further down the chain by
// returning the zero result together with a *PanicError.
//
// Will also record an error within the OTEL span found on ctx with the stack
// and recovered value from the panic.
func PanicRecoveryMiddleware[E, R any]() lambdamiddlewareutils.Middleware[E, R] {
	return PanicRecoveryMiddlewareFunc(func(ctx context.Context, event E, lc lambdamiddlewareutils.Context, recoverValue any, stack []byte) (R, error) {
		panicErr := &PanicError{
			Stack: string(stack),
		}
		if err, ok := recoverValue.(error); ok {
			panicErr.RecoveredError = err
		} else {
			panicErr.RecoveredValue = recoverValue
		}
		span := trace.SpanFromContext(ctx)
		span.SetStatus(codes.Error, "fatal panic occurred")
		span.RecordError(panicErr)
		var zero R
		return zero, panicErr
	})
}

// Middleware that allows the developer to specify a recovery action to take when recovering from a panic
func PanicRecoveryMiddlewareFunc[E, R any](recoverAction RecoverAction[E, R]) lambdamiddlewareutils.Middleware[E, R] {
	return func(ctx context.Context, event E, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[E, R]) (result R, err error) {
		defer func() {
			value := recover()
			if value == nil {
				return
			}
			stack := debug.Stack()
			result, err = recoverAction(ctx, event, lc, value, stack)
		}()
		return next(ctx, event, lc)
	}
}
