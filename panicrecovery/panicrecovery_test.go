package panicrecovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"

	lambdamiddlewareutils "github.com/niko-dunixi/lambdamiddleware-utils"
	"github.com/niko-dunixi/lambdamiddleware-utils/tracing"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type response struct {
	StatusCode int
	Body       string
}

func ExamplePanicRecoveryMiddleware() {
	handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
		PanicRecoveryMiddleware[string, response](),
	}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
		panic("a fatal error occurred")
	})
	_, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
	fmt.Println(err)
	// Output:
	// a panic occurred with value: a fatal error occurred
}

func ExamplePanicRecoveryMiddlewareFunc() {
	middleware := PanicRecoveryMiddlewareFunc(func(ctx context.Context, event string, lc lambdamiddlewareutils.Context, recoverValue any, stack []byte) (response, error) {
		log.Printf("something has broken: %s", recoverValue)
		return response{StatusCode: 500, Body: "500 Internal Server Error"}, nil
	})
	handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{middleware},
		func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			panic("a fatal error occurred")
		})
	result, _ := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
	fmt.Println(result.StatusCode, result.Body)
	// Output:
	// 500 500 Internal Server Error
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	t.Run("business as usual", func(t *testing.T) {
		// Setup
		otelMiddleware, exporter := OtelTestingMiddleware(t)
		Ω := NewWithT(t)
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			otelMiddleware,
			PanicRecoveryMiddleware[string, response](),
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			return response{StatusCode: 200, Body: "business as usual"}, nil
		})
		// Action
		result, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
		// Assertions
		Ω.Expect(err).ShouldNot(HaveOccurred())
		Ω.Expect(result).Should(Equal(response{StatusCode: 200, Body: "business as usual"}))
		spans := exporter.GetSpans()
		Ω.Expect(spans).To(HaveLen(1), "expect span to be exported")
		Ω.Expect(spans[0].Status.Code).To(Equal(codes.Unset), "error shouldn't be recorded in otel span")
	})
	t.Run("vanilla panic", func(t *testing.T) {
		// Setup
		otelMiddleware, exporter := OtelTestingMiddleware(t)
		Ω := NewWithT(t)
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			otelMiddleware,
			PanicRecoveryMiddleware[string, response](),
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			panic("something broke")
		})
		// Action
		result, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
		// Assertions
		Ω.Expect(result).Should(BeZero())
		var panicErr *PanicError
		Ω.Expect(errors.As(err, &panicErr)).To(BeTrue(), "expected a *PanicError")
		Ω.Expect(panicErr.RecoveredValue).To(Equal("something broke"))
		Ω.Expect(panicErr.Stack).ToNot(BeEmpty(), "stack should never be empty")
		spans := exporter.GetSpans()
		Ω.Expect(spans).To(HaveLen(1), "expect span to be exported")
		Ω.Expect(spans[0].Status.Code).To(Equal(codes.Error), "error wasn't recorded in otel span")
	})
	t.Run("panic with an error", func(t *testing.T) {
		// Setup
		otelMiddleware, exporter := OtelTestingMiddleware(t)
		Ω := NewWithT(t)
		cause := errors.New("connection reset")
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			otelMiddleware,
			PanicRecoveryMiddleware[string, response](),
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			panic(cause)
		})
		// Action
		_, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
		// Assertions
		Ω.Expect(err).To(MatchError(cause))
		Ω.Expect(err.Error()).To(Equal("a panic occurred with an error: connection reset"))
		spans := exporter.GetSpans()
		Ω.Expect(spans).To(HaveLen(1), "expect span to be exported")
		Ω.Expect(spans[0].Status.Code).To(Equal(codes.Error), "error wasn't recorded in otel span")
	})
	t.Run("nil dereference", func(t *testing.T) {
		// Setup
		otelMiddleware, exporter := OtelTestingMiddleware(t)
		Ω := NewWithT(t)
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			otelMiddleware,
			PanicRecoveryMiddleware[string, response](),
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			aNilReference := NilSupplier[string]()
			log.Printf("i will panic because of a nil dereference: %s", *aNilReference)
			return response{StatusCode: 200}, nil
		})
		// Action
		_, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
		// Assertions
		var panicErr *PanicError
		Ω.Expect(errors.As(err, &panicErr)).To(BeTrue(), "expected a *PanicError")
		Ω.Expect(panicErr.RecoveredError).To(HaveOccurred(), "runtime errors should be kept as errors")
		spans := exporter.GetSpans()
		Ω.Expect(spans).To(HaveLen(1), "expect span to be exported")
		Ω.Expect(spans[0].Status.Code).To(Equal(codes.Error), "error wasn't recorded in otel span")
	})
	t.Run("panics in downstream middleware are recovered", func(t *testing.T) {
		// Setup
		Ω := NewWithT(t)
		handlerCalled := false
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			PanicRecoveryMiddleware[string, response](),
			func(ctx context.Context, event string, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[string, response]) (response, error) {
				panic("middleware broke")
			},
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			handlerCalled = true
			return response{}, nil
		})
		// Action
		_, err := handler(context.Background(), "event", lambdamiddlewareutils.Context{})
		// Assertions
		Ω.Expect(err).To(MatchError("a panic occurred with value: middleware broke"))
		Ω.Expect(handlerCalled).To(BeFalse())
	})
	t.Run("no default behavior when developers bring their own recovery", func(t *testing.T) {
		// Setup
		otelMiddleware, exporter := OtelTestingMiddleware(t)
		Ω := NewWithT(t)
		invocationContext := lambdamiddlewareutils.NewContext(map[string]any{lambdamiddlewareutils.RequestIDKey: "req-1"})
		handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[string, response]{
			otelMiddleware,
			PanicRecoveryMiddlewareFunc(func(ctx context.Context, event string, lc lambdamiddlewareutils.Context, recoverValue any, stack []byte) (response, error) {
				// Validate for the testcase, but don't do anything functional here
				Ω.Expect(ctx).ToNot(BeNil())
				Ω.Expect(event).To(Equal("event"))
				Ω.Expect(lambdamiddlewareutils.RequestID(lc)).To(Equal("req-1"))
				Ω.Expect(recoverValue).To(Equal("something broke"), "the recovered value should be handed over")
				Ω.Expect(stack).ToNot(BeEmpty(), "stack should never be empty")
				return response{StatusCode: 503, Body: "try again later"}, nil
			}),
		}, func(ctx context.Context, event string, lc lambdamiddlewareutils.Context) (response, error) {
			panic("something broke")
		})
		// Action
		result, err := handler(context.Background(), "event", invocationContext)
		// Assertions
		Ω.Expect(err).ShouldNot(HaveOccurred())
		Ω.Expect(result).Should(Equal(response{StatusCode: 503, Body: "try again later"}))
		spans := exporter.GetSpans()
		Ω.Expect(spans).To(HaveLen(1), "expect span to be exported")
		Ω.Expect(spans[0].Status.Code).To(Equal(codes.Unset), "error shouldn't be recorded in otel span")
	})
}

func OtelTestingMiddleware(t *testing.T) (lambdamiddlewareutils.Middleware[string, response], *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	t.Cleanup(func() {
		// likely redundant, since this is not utilized across multiple test-cases, but it
		// almost always makes sense to practice memory-hygiene
		exporter.Reset()
	})
	return tracing.TracingMiddleware[string, response]("invoke", tracing.WithTracerProvider(tp)), exporter
}

// A naive function to defeat the linter for the purposes of testing
// conditions that the linter should normally catch.
func NilSupplier[T any]() *T {
	return nil
}
