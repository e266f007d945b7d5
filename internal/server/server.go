package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/postmod/apiserver/config"
	"github.com/postmod/apiserver/internal/autoreply"
	"github.com/postmod/apiserver/internal/db"
	"github.com/postmod/apiserver/internal/handlers"
	"github.com/postmod/apiserver/internal/moderation"
	"github.com/postmod/apiserver/internal/mq"
	"github.com/postmod/apiserver/internal/services"
	"github.com/postmod/apiserver/internal/storage"
	"github.com/postmod/apiserver/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP server, its router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	objects    *storage.Storage
	scheduler  *autoreply.Scheduler
	logger     *slog.Logger
}

type repositories struct {
	users    services.UserRepository
	posts    services.PostRepository
	comments services.CommentRepository
}

// New wires every component selected by cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}
	repos, err := s.openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.broker, err = mq.Open(ctx, cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	var events *services.EventPublisher
	if s.broker != nil {
		events = services.NewEventPublisher(s.broker, cfg.MQ.Channel, logger)
	}

	s.objects, err = storage.Open(ctx, cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	var archive *services.RejectionArchive
	if s.objects != nil {
		archive = services.NewRejectionArchive(s.objects, logger)
	}

	gate := moderation.NewClient(moderation.Config{
		URL:        cfg.Moderation.URL,
		APIKey:     cfg.Moderation.APIKey,
		Timeout:    cfg.Moderation.Timeout,
		MaxRetries: cfg.Moderation.MaxRetries,
		FailClosed: cfg.Moderation.FailClosed,
	}, logger)

	authService, err := services.NewAuthService(repos.users, services.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Algorithm:  cfg.Auth.Algorithm,
		DefaultTTL: cfg.Auth.DefaultTTL(),
	}, services.NewRevocationList(cfg.Auth.RevocationCacheSize, cfg.Auth.DefaultTTL()))
	if err != nil {
		s.closeResources()
		return nil, err
	}

	replies := services.NewReplyStore(repos.comments, repos.posts, events, logger)
	s.scheduler = autoreply.NewScheduler(replies.Store, cfg.AutoReply.Author, cfg.AutoReply.JobTimeout, logger)

	userService := services.NewUserService(repos.users)
	postService := services.NewPostService(repos.posts, gate, events, archive, logger)
	commentService := services.NewCommentService(services.CommentDeps{
		Comments: repos.comments,
		Posts:    repos.posts,
		Users:    repos.users,
		Gate:     gate,
		Replier:  s.scheduler,
		Events:   events,
		Archive:  archive,
		Logger:   logger,
	})
	analyticsService := services.NewAnalyticsService(repos.comments)

	var limiter *handlers.LoginLimiter
	if cfg.Auth.LoginRatePerSecond > 0 {
		limiter = handlers.NewLoginLimiter(cfg.Auth.LoginRatePerSecond, cfg.Auth.LoginBurst)
	}
	authMiddleware := handlers.RequireAuth(authService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger.With("component", "http")),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/", handlers.Welcome)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, authService, userService, limiter)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postService, authMiddleware)
	})
	router.Route("/comments", func(r chi.Router) {
		handlers.CommentRouter(r, commentService, authMiddleware)
	})
	router.Route("/analytics", func(r chi.Router) {
		handlers.AnalyticsRouter(r, analyticsService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		"port", port,
		"store", cfg.Store.Backend,
		"mq", cfg.MQ.Backend,
		"archive", cfg.Archive.Backend,
		"moderation_fail_closed", cfg.Moderation.FailClosed,
	)
	return s, nil
}

func (s *Server) openRepositories(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return repositories{}, fmt.Errorf("open database: %w", err)
		}
		s.db = conn
		return repositories{
			users:    store.NewUserRepository(conn),
			posts:    store.NewPostRepository(conn),
			comments: store.NewCommentRepository(conn),
		}, nil
	default:
		return repositories{
			users:    store.NewMemoryUserRepository(),
			posts:    store.NewMemoryPostRepository(),
			comments: store.NewMemoryCommentRepository(),
		}, nil
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Scheduler exposes the auto-reply scheduler.
func (s *Server) Scheduler() *autoreply.Scheduler {
	return s.scheduler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains in-flight ones, cancels
// pending auto-replies and releases backends.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("autoreply: %w", err))
		}
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeResources() error {
	var errs []error
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mq: %w", err))
		}
		s.broker = nil
	}
	if s.objects != nil {
		if err := s.objects.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		s.objects = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}
