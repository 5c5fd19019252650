package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/research"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard-facing HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Service),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(svc *research.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/businesses/{businessID}", func(r chi.Router) {
		r.Post("/research/initial", func(w http.ResponseWriter, req *http.Request) {
			out, err := svc.RunInitial(req.Context(), chi.URLParam(req, "businessID"))
			writeOutcome(w, out, err, http.StatusOK)
		})

		r.Post("/research/weekly", func(w http.ResponseWriter, req *http.Request) {
			out, err := svc.RunIncremental(req.Context(), chi.URLParam(req, "businessID"))
			writeOutcome(w, out, err, http.StatusOK)
		})

		r.Get("/results", func(w http.ResponseWriter, req *http.Request) {
			limit := queryInt(req, "limit", 50)
			offset := queryInt(req, "offset", 0)
			platform := req.URL.Query().Get("platform")
			out, err := svc.GetRevealedResults(req.Context(), chi.URLParam(req, "businessID"), platform, limit, offset)
			writeOutcome(w, out, err, http.StatusOK)
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			out, err := svc.GetResearchStats(req.Context(), chi.URLParam(req, "businessID"))
			writeOutcome(w, out, err, http.StatusOK)
		})

		r.Post("/targets/{index}/process", func(w http.ResponseWriter, req *http.Request) {
			index, err := strconv.Atoi(chi.URLParam(req, "index"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target index must be an integer"})
				return
			}
			out, perr := svc.ProcessTarget(req.Context(), chi.URLParam(req, "businessID"), index)
			writeOutcome(w, out, perr, http.StatusOK)
		})
	})

	return r
}

// writeOutcome marshals a discriminated service outcome. The payload always
// goes out; the status code distinguishes success from failure.
func writeOutcome(w http.ResponseWriter, out any, err error, okStatus int) {
	status := okStatus
	if err != nil {
		status = statusForError(err)
	}
	writeJSON(w, status, out)
}

func statusForError(err error) int {
	switch {
	case eris.Is(err, research.ErrNoEntitlement),
		eris.Is(err, research.ErrSourceDisabled):
		return http.StatusForbidden
	case eris.Is(err, research.ErrNoKeywords):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response write failed", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
