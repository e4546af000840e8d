package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/orchestrate"
	"github.com/risk-sentinel/sentinel-cli/internal/recommend"
	"github.com/risk-sentinel/sentinel-cli/internal/report"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the blind spot report and decision API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := newRouter(st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

func newRouter(st store.Store) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/v1/report", func(w http.ResponseWriter, req *http.Request) {
		run, err := loadRun(req.Context(), st, req.URL.Query().Get("run"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("report lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		recs := recommend.NewEngine(cfg.Recommend).Build(run.Metrics)
		writeResponse(w, http.StatusOK, report.Build(*run, recs))
	})

	r.Get("/v1/actions", func(w http.ResponseWriter, req *http.Request) {
		var states []model.ActionState
		if s := req.URL.Query().Get("state"); s != "" {
			states = append(states, model.ActionState(s))
		}

		actions, err := st.ListActions(req.Context(), states...)
		if err != nil {
			zap.L().Error("list actions failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if actions == nil {
			actions = []model.ProposedAction{}
		}
		writeResponse(w, http.StatusOK, actions)
	})

	r.Post("/v1/actions/{id}/decision", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Decision  string `json:"decision"`
			Actor     string `json:"actor"`
			Rationale string `json:"rationale"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		o := orchestrate.New(st, cfg.Orchestrate)
		err := o.Decide(req.Context(), model.DecisionEvent{
			ActionID:  chi.URLParam(req, "id"),
			Decision:  body.Decision,
			Actor:     body.Actor,
			Rationale: body.Rationale,
			Timestamp: time.Now().UTC(),
		})
		switch {
		case err == nil:
			writeResponse(w, http.StatusOK, map[string]string{"status": "recorded"})
		case eris.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "action not found")
		case eris.Is(err, store.ErrStaleTransition):
			writeError(w, http.StatusConflict, "action is not awaiting review")
		case eris.Is(err, orchestrate.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid transition")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
	})

	return r
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
