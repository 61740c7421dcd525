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

	"github.com/parkpulse/parkpulse/internal/accounting"
	"github.com/parkpulse/parkpulse/internal/geo"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/pricing"
	"github.com/parkpulse/parkpulse/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with live session tracking and availability sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rates, err := loadRates()
		if err != nil {
			return err
		}

		svc := accounting.NewService(st, nil)
		dispatcher := notify.NewDispatcher(svc, cfg.Notify.WebhookURL)

		// Live cost ticking for active sessions.
		ticker := accounting.NewTicker(svc, pricing.NewCalculator(rates),
			time.Duration(cfg.Session.TickSecs)*time.Second,
			func(ctx2 context.Context, sessionID string) {
				sess, err := svc.Session(ctx2, sessionID)
				if err != nil {
					return
				}
				if err := dispatcher.SessionUpdated(ctx2, sess); err != nil {
					zap.L().Warn("session alert dispatch failed",
						zap.String("session", sessionID), zap.Error(err))
				}
			})
		go ticker.Run(ctx)

		// Periodic availability sync.
		if cfg.DataGov.SyncInterval > 0 {
			client := newDataGovClient()
			go func() {
				interval := time.Duration(cfg.DataGov.SyncInterval) * time.Second
				t := time.NewTicker(interval)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-t.C:
						if n, err := syncAvailability(ctx, client, st); err != nil {
							zap.L().Warn("availability sync failed", zap.Error(err))
						} else {
							zap.L().Debug("availability synced", zap.Int("readings", n))
						}
					}
				}
			}()
		}

		router := buildRouter(svc, st, rates, dispatcher)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the HTTP API.
func buildRouter(svc *accounting.Service, st store.Store, rates pricing.Rates, dispatcher *notify.Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/carparks", func(r chi.Router) {
		r.Get("/near", func(w http.ResponseWriter, req *http.Request) {
			lat, err1 := strconv.ParseFloat(req.URL.Query().Get("lat"), 64)
			lon, err2 := strconv.ParseFloat(req.URL.Query().Get("lon"), 64)
			if err1 != nil || err2 != nil {
				writeError(w, http.StatusBadRequest, "lat and lon are required")
				return
			}
			radius := queryFloat(req, "radius", 1000)
			limit := int(queryFloat(req, "limit", 20))

			bounds := geo.BoundsAround(lat, lon, radius)
			candidates, err := st.CarparksInBounds(req.Context(),
				bounds.Min(1), bounds.Min(0), bounds.Max(1), bounds.Max(0), 1000)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, geo.Nearest(candidates, lat, lon, radius, limit))
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			carpark, err := st.GetCarpark(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, carpark)
		})

		r.Get("/{id}/availability", func(w http.ResponseWriter, req *http.Request) {
			readings, err := st.GetAvailability(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, readings)
		})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				UserID    string   `json:"user_id"`
				CarparkID string   `json:"carpark_id"`
				BudgetCap *float64 `json:"budget_cap,omitempty"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			params := accounting.StartSessionParams{
				UserID:    body.UserID,
				CarparkID: body.CarparkID,
				BudgetCap: body.BudgetCap,
			}
			if carpark, err := st.GetCarpark(req.Context(), body.CarparkID); err == nil {
				params.CarparkName = carpark.Address
				params.CarparkAddress = carpark.Address
			}
			sess, err := svc.StartSession(req.Context(), params)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, sess)
		})

		r.Get("/active", func(w http.ResponseWriter, req *http.Request) {
			userID := req.URL.Query().Get("user")
			if userID == "" {
				writeError(w, http.StatusBadRequest, "user is required")
				return
			}
			sess, err := svc.ActiveSession(req.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if sess == nil {
				writeError(w, http.StatusNotFound, "no active session")
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			sessions, err := svc.Sessions(req.Context(), store.SessionFilter{
				UserID: req.URL.Query().Get("user"),
				Limit:  int(queryFloat(req, "limit", 0)),
				Offset: int(queryFloat(req, "offset", 0)),
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sessions)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			sess, err := svc.Session(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sess)
		})

		r.Post("/{id}/end", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				FinalCost *float64 `json:"final_cost,omitempty"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			sessionID := chi.URLParam(req, "id")
			finalCost := 0.0
			if body.FinalCost != nil {
				finalCost = *body.FinalCost
			} else {
				sess, err := svc.Session(req.Context(), sessionID)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				calc := pricing.ForCarparkType(rates, carparkType(req.Context(), st, sess.CarparkID))
				finalCost = calc.Estimate(sess.Elapsed(svc.Now()))
			}

			ended, err := svc.EndSession(req.Context(), sessionID, finalCost)
			if err != nil {
				writeServiceError(w, err)
				return
			}

			// Roll the final cost into the monthly budget when one exists.
			if b, err := svc.AddSpending(req.Context(), ended.UserID, finalCost); err == nil {
				if err := dispatcher.BudgetUpdated(req.Context(), b); err != nil {
					zap.L().Warn("budget alert dispatch failed", zap.Error(err))
				}
			} else if !eris.Is(err, accounting.ErrNotFound) && !eris.Is(err, accounting.ErrValidation) {
				writeServiceError(w, err)
				return
			}

			writeJSON(w, http.StatusOK, ended)
		})
	})

	r.Route("/budgets/{user}", func(r chi.Router) {
		r.Put("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Limit float64 `json:"limit"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			b, err := svc.SetMonthlyBudget(req.Context(), chi.URLParam(req, "user"), body.Limit)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, b)
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			b, err := svc.CurrentBudget(req.Context(), chi.URLParam(req, "user"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"budget":        b,
				"remaining":     b.Remaining(),
				"usage_percent": b.UsagePercent(),
				"exceeded":      b.IsExceeded(),
			})
		})

		r.Post("/spending", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Add    *float64 `json:"add,omitempty"`
				Remove *float64 `json:"remove,omitempty"`
				Set    *float64 `json:"set,omitempty"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			userID := chi.URLParam(req, "user")
			var (
				b   *model.Budget
				err error
			)
			switch {
			case body.Add != nil:
				b, err = svc.AddSpending(req.Context(), userID, *body.Add)
			case body.Remove != nil:
				b, err = svc.RemoveSpending(req.Context(), userID, *body.Remove)
			case body.Set != nil:
				b, err = svc.UpdateCurrentSpending(req.Context(), userID, *body.Set)
			default:
				writeError(w, http.StatusBadRequest, "one of add, remove, set is required")
				return
			}
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if err := dispatcher.BudgetUpdated(req.Context(), b); err != nil {
				zap.L().Warn("budget alert dispatch failed", zap.Error(err))
			}
			writeJSON(w, http.StatusOK, b)
		})

		r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
			b, err := svc.CurrentBudget(req.Context(), chi.URLParam(req, "user"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			b, err = svc.ResetSpending(req.Context(), b.ID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, b)
		})
	})

	r.Delete("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.PurgeUser(req.Context(), chi.URLParam(req, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func queryFloat(req *http.Request, key string, def float64) float64 {
	v, err := strconv.ParseFloat(req.URL.Query().Get(key), 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the accounting error taxonomy to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, accounting.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case eris.Is(err, accounting.ErrConflict), eris.Is(err, accounting.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case eris.Is(err, accounting.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
