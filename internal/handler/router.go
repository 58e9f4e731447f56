package handler

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Options carries the transport settings of the router.
type Options struct {
	AllowedOrigins   []string
	DefaultBookDepth int
}

// NewRouter creates a chi router with all routes registered, request
// logging, CORS and Content-Type validation middleware. stream serves the
// trade feed websocket.
func NewRouter(
	users Users,
	orders Orders,
	market Market,
	stream http.HandlerFunc,
	opts Options,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Scripted clients address every route with a trailing slash.
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)
	r.Use(contentTypeJSON)

	userH := NewUserHandler(users, orders)
	orderH := NewOrderHandler(orders)
	marketH := NewMarketHandler(market, opts.DefaultBookDepth)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// User routes.
	r.Post("/user", userH.Create)
	r.Route("/user/{user_id}", func(r chi.Router) {
		r.Get("/exists", userH.Exists)
		r.Get("/balance", userH.GetBalance)
		r.Post("/balance/add", userH.AddBalance)
		r.Post("/balance/remove/{amount}", userH.RemoveBalance)
		r.Get("/stocks", userH.GetStocks)
		r.Get("/stocks/{symbol}", userH.GetStock)
		r.Post("/stocks/{symbol}/add/{amount}", userH.AddStock)
		r.Post("/stocks/{symbol}/remove/{amount}", userH.RemoveStock)
		r.Get("/orders", userH.ListOrders)
	})

	// Order routes.
	r.Post("/order/place", orderH.Place)
	r.Get("/order/status/{order_id}", orderH.Status)
	r.Get("/order/trades/{order_id}", orderH.Trades)
	r.Get("/order/{order_id}", orderH.Get)
	r.Post("/order/{order_id}/cancel", orderH.Cancel)

	// Market data routes.
	r.Get("/stocks", marketH.Symbols)
	r.Get("/stocks/{symbol}/price", marketH.GetPrice)
	r.Get("/stocks/{symbol}/trades", marketH.GetTrades)
	r.Get("/stocks/{symbol}/book", marketH.GetBook)

	if stream != nil {
		r.Get("/trades/stream", stream)
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration.
func requestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// contentTypeJSON rejects POST requests that carry a body with a
// Content-Type other than application/json. Bodiless POSTs pass through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
