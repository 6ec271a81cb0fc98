package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tanshuai2008/HouSmart-test/internal/analysis"
	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
	"github.com/tanshuai2008/HouSmart-test/internal/config"
	"github.com/tanshuai2008/HouSmart-test/internal/monitoring"
	"github.com/tanshuai2008/HouSmart-test/internal/pipeline"
	"github.com/tanshuai2008/HouSmart-test/pkg/geocode"
)

var servePort int

// reportRunner is the slice of the pipeline the HTTP API needs.
type reportRunner interface {
	Run(ctx context.Context, req analysis.Request) (*pipeline.Report, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		current := func() *config.Config { return cfg }
		if cfg.ReloadIntervalSecs > 0 {
			path := cfgFile
			r := config.NewReloader(cfg, "serve", seconds(cfg.ReloadIntervalSecs), func() (*config.Config, error) {
				return config.LoadFile(path)
			})
			r.OnChange(func(c *config.Config) {
				if err := config.InitLogger(c.Log); err != nil {
					zap.L().Warn("serve: apply reloaded log config", zap.Error(err))
				}
			})
			current = r.Current
			go r.Run(ctx)
		}

		metrics := monitoring.New()
		env, err := initEnv(ctx, current, metrics)
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
			Handler:           buildRouter(env.Pipeline, env.Resolver, env.Benchmarks, metrics, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.ShutdownSecs))
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type requestIDKey struct{}

// requestID tags each request with an ID, echoing a client-supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestLogger(r *http.Request) *zap.Logger {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return zap.L().With(zap.String("request_id", id), zap.String("path", r.URL.Path))
}

// buildRouter wires the HTTP API. runner and resolver may be nil, in which
// case the matching endpoints answer 503.
func buildRouter(runner reportRunner, resolver geocode.Resolver, bm *benchmark.Store, metrics *monitoring.Metrics, origins []string) http.Handler {
	if bm == nil {
		bm = benchmark.MustDefault()
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Post("/analyze", handleAnalyze(runner))
		v.Get("/geocode", handleGeocode(resolver))
		v.Get("/benchmarks/{state}", handleBenchmark(bm))
	})
	return r
}

type analyzeBody struct {
	Address         string         `json:"address"`
	Weights         map[string]int `json:"weights,omitempty"`
	UserPreferences string         `json:"userPreferences,omitempty"`
}

func handleAnalyze(runner reportRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r)
		if runner == nil {
			writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
			return
		}

		var body analyzeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rep, err := runner.Run(r.Context(), analysis.Request{
			Address:         body.Address,
			Weights:         body.Weights,
			UserPreferences: body.UserPreferences,
		})
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rep)
		case errors.Is(err, analysis.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case rep == nil:
			log.Error("analyze failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "analysis failed")
		case errors.Is(err, analysis.ErrQuotaExceeded):
			log.Warn("analyze: quota exhausted", zap.String("address", body.Address))
			writeJSON(w, http.StatusServiceUnavailable, rep)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeJSON(w, http.StatusGatewayTimeout, rep)
		default:
			log.Error("analyze: model failed", zap.String("address", body.Address), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, rep)
		}
	}
}

func handleGeocode(resolver geocode.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resolver == nil {
			writeError(w, http.StatusServiceUnavailable, "geocoder not configured")
			return
		}
		address := r.URL.Query().Get("address")
		if address == "" {
			writeError(w, http.StatusBadRequest, "address is required")
			return
		}
		geo, err := resolver.Resolve(r.Context(), address)
		if err != nil {
			if errors.Is(err, geocode.ErrGeocodeFailure) {
				writeError(w, http.StatusNotFound, "address could not be resolved")
				return
			}
			requestLogger(r).Error("geocode failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "geocode failed")
			return
		}
		writeJSON(w, http.StatusOK, geo)
	}
}

func handleBenchmark(bm *benchmark.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, bm.Lookup(chi.URLParam(r, "state")))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
