package lambdamiddlewareutils

import (
	"context"
	"slices"
)

// Handler is the terminal node of a chain. It turns an event and the
// invocation context into a result.
type Handler[E, R any] func(ctx context.Context, event E, lc Context) (R, error)

// Middleware receives the event, the invocation context and the rest of the
// chain as next. It may call next at most once, optionally with a different
// event or an extended Context, or return without calling it at all.
type Middleware[E, R any] func(ctx context.Context, event E, lc Context, next Handler[E, R]) (R, error)

// Take a set of middleware and wrap them around handler, producing a single
// handler that executes them in the same order they are provided. The first
// middleware is the outermost: it runs first and finishes last.
//
// An empty set returns handler unchanged. The slice is only read while
// building the chain, so the caller may reuse it afterwards.
func WithMiddlewares[E, R any](middlewares []Middleware[E, R], handler Handler[E, R]) Handler[E, R] {
	chained := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		chained = wrap(middlewares[i], chained)
	}
	return chained
}

func wrap[E, R any](mw Middleware[E, R], next Handler[E, R]) Handler[E, R] {
	return func(ctx context.Context, event E, lc Context) (R, error) {
		return mw(ctx, event, lc, next)
	}
}

// Combine a set of middleware into a decorator that can be applied to any
// handler of the same type.
func Chain[E, R any](mw ...Middleware[E, R]) func(Handler[E, R]) Handler[E, R] {
	mw = slices.Clone(mw)
	return func(finalHandler Handler[E, R]) Handler[E, R] {
		return WithMiddlewares(mw, finalHandler)
	}
}
