package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"promolink/internal/converter"
	"promolink/internal/linkx"
	"promolink/internal/relay"
	"promolink/internal/storage"
	"promolink/internal/wa"
)

// Instances is the WhatsApp side of the API, satisfied by *wa.Manager.
type Instances interface {
	StartPairing(ctx context.Context, instanceID string) ([]byte, string, error)
	RequestPairingCode(ctx context.Context, instanceID, msisdn string) (string, error)
	ConnectIfPaired(ctx context.Context, instanceID string) error
	Logout(ctx context.Context, instanceID string) error
	DropInstance(instanceID string)
	FetchAndSyncGroups(ctx context.Context, instanceID string) (int, error)
}

// Converter is satisfied by *converter.Client.
type Converter interface {
	Extractor() *linkx.Extractor
	ConvertText(ctx context.Context, text string) converter.TextResult
}

// Relayer is satisfied by *relay.Relay.
type Relayer interface {
	HandleText(ctx context.Context, instanceID, sourceGroup, text string) (relay.Outcome, error)
}

type Deps struct {
	Store  *storage.Store
	WA     Instances
	Conv   Converter
	Relay  Relayer
	Logger *zap.SugaredLogger

	CORSOrigins []string
}

type API struct {
	Deps
	Router *chi.Mux
}

func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	api := &API{Deps: d, Router: chi.NewRouter()}
	r := api.Router

	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapRequestLogger(d.Logger))
	r.Use(middleware.Timeout(120 * time.Second))

	api.routes()
	return r
}

func (a *API) routes() {
	r := a.Router
	r.Get("/api/health", a.handleHealth)
	r.Get("/api/stats", a.handleStats)
	r.Get("/api/conversions", a.handleListConversions)
	r.Get("/api/outbox", a.handleListOutbox)

	r.Route("/api/instances", func(r chi.Router) {
		r.Get("/", a.handleListInstances)
		r.Post("/", a.handleCreateInstance)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGetInstance)
			r.Put("/", a.handleUpdateInstance)
			r.Delete("/", a.handleDeleteInstance)
			r.Get("/pair/qr", a.handlePairQR)
			r.Post("/pair/number", a.handlePairByNumber)
			r.Post("/connect", a.handleConnect)
			r.Post("/logout", a.handleLogout)
			r.Get("/groups", a.handleListGroups)
			r.Post("/groups/refresh", a.handleRefreshGroups)
			r.Put("/groups/{gid}", a.handleSetGroupFlags)
			r.Post("/relay", a.handleRelayText)
		})
	})

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", a.handleListTemplates)
		r.Post("/", a.handleCreateTemplate)
		r.Post("/preview", a.handlePreviewTemplate)
		r.Put("/{id}", a.handleUpdateTemplate)
		r.Delete("/{id}", a.handleDeleteTemplate)
		r.Post("/{id}/default", a.handleSetDefaultTemplate)
	})

	r.Post("/api/links/extract", a.handleExtractLinks)
	r.Post("/api/links/convert", a.handleConvertLinks)
}

func zapRequestLogger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Infow("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"time":      time.Now().Format(time.RFC3339),
		"whatsapp":  a.WA != nil,
		"converter": a.Conv != nil,
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Store.StatsToday()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleListConversions(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListConversions(r.URL.Query().Get("instance_id"), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListOutbox(r.URL.Query().Get("status"), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// fail maps well-known errors to status codes.
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, wa.ErrNotPaired), errors.Is(err, wa.ErrAlreadyPaired):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusGatewayTimeout, err.Error())
	default:
		a.Logger.Errorw("http_handler_failed", "err", err)
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
