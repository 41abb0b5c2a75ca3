package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"wheelshare/pkg/config"
	"wheelshare/pkg/contracts"
	"wheelshare/pkg/middleware"
)

// Application owns the HTTP server, the middleware chain and the lifecycle
// around them. Handlers register their routes; Run blocks until shutdown.
type Application struct {
	cfg    *config.Config
	router *httprouter.Router
	server *http.Server

	idempotency *middleware.InMemoryIdempotencyStore
	limiter     *middleware.ActorRateLimiter
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{
		cfg:         cfg,
		router:      httprouter.New(),
		idempotency: middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL),
		limiter: middleware.NewActorRateLimiter(
			cfg.RateLimitRequests,
			cfg.RateLimitWindow,
			middleware.DefaultActorExtractor,
			cfg.Log,
		),
	}
}

func (a *Application) RegisterHandlers(handlers ...contracts.Handler) {
	for _, h := range handlers {
		h.RegisterRoutes(a.router)
	}
}

// buildHandler wraps the router in the middleware chain, outermost first.
func (a *Application) buildHandler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(a.cfg.Log),
		middleware.RequestLogging(a.cfg.Log),
		middleware.RequestTimeout(a.cfg.RequestTimeout),
		middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize)),
		middleware.ContentTypeValidation(a.cfg.Log),
		middleware.ActorRateLimit(a.limiter),
		middleware.Idempotency(a.idempotency, "Idempotency-Key"),
	}

	var handler http.Handler = a.router
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listener
// failure, then drains in-flight requests within the shutdown timeout.
func (a *Application) Run() error {
	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.buildHandler(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.ListenAndServe()
	}()
	a.cfg.Log.Info("HTTP server started", "port", a.cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-quit:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.idempotency.Stop()
	a.limiter.Stop()
	if err != nil {
		return err
	}

	a.cfg.Log.Info("HTTP server stopped")
	return nil
}
