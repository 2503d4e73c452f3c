// Пакет server — HTTP-сервер Film Rental с graceful shutdown.
// Без TLS — TLS termination на reverse proxy перед витриной.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/filmrental/internal/api/handlers"
	"github.com/bigkaa/filmrental/internal/api/middleware"
	"github.com/bigkaa/filmrental/internal/api/openapi"
	"github.com/bigkaa/filmrental/internal/config"
	"github.com/bigkaa/filmrental/internal/domain/model"
)

// Server — HTTP-сервер Film Rental.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// RouterOptions — параметры маршрутизации.
type RouterOptions struct {
	// JWTAuth — проверка bearer-токенов (обязателен для /api/me и /api/change-password)
	JWTAuth *middleware.JWTAuth
	// LoginLimiter — ограничение попыток входа (nil — без ограничения)
	LoginLimiter *middleware.IPRateLimiter
	// RequireStaffAuth — закрыть запись каталога, сводку аренд и синхронизацию токеном персонала
	RequireStaffAuth bool
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, opts RouterOptions) *Server {
	router := NewRouter(logger, handler, opts)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами API.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, opts RouterOptions) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	// Health и metrics — без аутентификации
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	// Гейт персонала для служебных операций (если включён)
	staffOnly := func(r chi.Router) chi.Router {
		if opts.RequireStaffAuth && opts.JWTAuth != nil {
			return r.With(opts.JWTAuth.Middleware(), middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
		}
		return r
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/openapi.yaml", openapi.Handler())

		// Каталог
		r.Get("/films", h.ListFilms)
		r.Get("/films/{id}", h.GetFilm)
		r.Get("/catalog", h.GetCatalog)
		staffOnly(r).Post("/films", h.ReplaceFilms)
		staffOnly(r).Post("/films/add", h.AddFilm)
		staffOnly(r).Put("/films/update/{id}", h.UpdateFilm)
		staffOnly(r).Delete("/films/delete", h.DeleteFilm)
		staffOnly(r).Post("/catalog/sync", h.SyncCatalog)

		// Аренды
		r.Get("/rentals", h.ListRentals)
		r.Post("/rentals", h.ReplaceRentals)
		r.Post("/rentals/record", h.RecordRental)
		staffOnly(r).Get("/rentals/all", h.AllRentals)
		staffOnly(r).Get("/rentals/stats", h.RentalStats)

		// Оплата
		r.Post("/payments", h.CreatePayment)
		r.Get("/payments/{id}", h.GetPayment)
		r.Post("/payments/{id}/submit", h.SubmitPayment)
		r.Post("/payments/{id}/reject", h.RejectPayment)
		r.Post("/payments/{id}/fail", h.FailPayment)

		// Аутентификация персонала
		if opts.LoginLimiter != nil {
			r.With(opts.LoginLimiter.Middleware()).Post("/login", h.Login)
		} else {
			r.Post("/login", h.Login)
		}
		if opts.JWTAuth != nil {
			r.With(opts.JWTAuth.Middleware()).Get("/me", h.Me)
			r.With(
				opts.JWTAuth.Middleware(),
				middleware.RequireRole(model.RoleAdmin, model.RoleStaff),
			).Post("/change-password", h.ChangePassword)
		}
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
