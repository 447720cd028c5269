package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	lambdamiddlewareutils "github.com/niko-dunixi/lambdamiddleware-utils"
	"github.com/niko-dunixi/lambdamiddleware-utils/localinvoke"
	"github.com/niko-dunixi/lambdamiddleware-utils/panicrecovery"
	"github.com/niko-dunixi/lambdamiddleware-utils/tracing"
)

type Event map[string]any

type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML function config")
	flag.Parse()
	cfg, err := localinvoke.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	// Any handler that is passed as the final parameter will be wrapped by
	// the full chain of middleware, first to last.
	handler := lambdamiddlewareutils.WithMiddlewares([]lambdamiddlewareutils.Middleware[Event, Response]{
		panicrecovery.PanicRecoveryMiddleware[Event, Response](),
		tracing.TracingMiddleware[Event, Response]("invoke " + cfg.FunctionName),
		timingMiddleware(),
		validationMiddleware(1),
		authMiddleware(),
	}, apiHandler)
	server := http.Server{
		Handler: localinvoke.NewHandler(handler, localinvoke.WithConfig(cfg)),
		Addr:    cfg.Addr,
	}
	log.Printf("running server: %v", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}

func apiHandler(ctx context.Context, event Event, lc lambdamiddlewareutils.Context) (Response, error) {
	user, ok := lambdamiddlewareutils.Value[User](lc, "user")
	if !ok {
		return Response{StatusCode: http.StatusUnauthorized, Body: `{"message":"unauthenticated"}`}, nil
	}
	body, err := json.Marshal(user)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func timingMiddleware() lambdamiddlewareutils.Middleware[Event, Response] {
	return func(ctx context.Context, event Event, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[Event, Response]) (Response, error) {
		start := time.Now()
		defer func() {
			log.Printf("invocation %s took %s to perform", lambdamiddlewareutils.RequestID(lc), time.Since(start))
		}()
		return next(ctx, event, lc)
	}
}

func validationMiddleware(minKeys int) lambdamiddlewareutils.Middleware[Event, Response] {
	return func(ctx context.Context, event Event, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[Event, Response]) (Response, error) {
		if len(event) < minKeys {
			return Response{
				StatusCode: http.StatusBadRequest,
				Body:       fmt.Sprintf(`{"message":"event needs at least %d keys"}`, minKeys),
			}, nil
		}
		return next(ctx, event, lc)
	}
}

func authMiddleware() lambdamiddlewareutils.Middleware[Event, Response] {
	return func(ctx context.Context, event Event, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[Event, Response]) (Response, error) {
		username, _ := event["username"].(string)
		if username == "" {
			return next(ctx, event, lc)
		}
		user := User{Username: username, Email: username + "@example.com"}
		return next(ctx, event, lc.With("user", user))
	}
}
