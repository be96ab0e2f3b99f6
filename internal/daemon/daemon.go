package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/catalog"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/database"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/httpapi"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/logging"
	"github.com/MarkoPoloResearchLab/communitypoints/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// Runtime is an open database with a migrated schema and the engine built on it.
type Runtime struct {
	Config   Config
	Logger   *zap.Logger
	Database *database.Database
	Engine   *points.Engine
}

// Open validates cfg, connects, migrates and builds the engine. The catalog file, when
// configured, is applied before Open returns.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	engine, err := newEngine(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	runtime := &Runtime{Config: cfg, Logger: logger, Database: db, Engine: engine}
	if err := runtime.applyCatalog(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return runtime, nil
}

// Close releases the database.
func (runtime *Runtime) Close() error {
	return runtime.Database.Close()
}

// Migrate applies pending migrations and reports the resulting schema version.
func Migrate(ctx context.Context, cfg Config, logger *zap.Logger) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx, logger); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	return db.SchemaVersion(ctx, logger)
}

// Run serves HTTP, and gRPC when enabled, until ctx is cancelled or a listener fails.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.validateServe(); err != nil {
		return err
	}
	runtime, err := Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = runtime.Close() }()
	return runtime.Serve(ctx)
}

// Serve runs the transports of an open runtime.
func (runtime *Runtime) Serve(ctx context.Context) error {
	cfg := runtime.Config
	if err := cfg.validateServe(); err != nil {
		return err
	}
	httpServer, err := runtime.newHTTPServer()
	if err != nil {
		return err
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPListenAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	var (
		grpcServer   *grpc.Server
		grpcListener net.Listener
	)
	if cfg.GRPCEnabled() {
		if grpcServer, err = runtime.newGRPCServer(); err != nil {
			_ = httpListener.Close()
			return err
		}
		if grpcListener, err = net.Listen("tcp", cfg.GRPCListenAddr); err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	} else {
		runtime.Logger.Info("gRPC disabled", zap.String("grpc_listen_addr", cfg.GRPCListenAddr))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		runtime.Logger.Info("HTTP server starting", zap.String("listen_addr", httpListener.Addr().String()))
		if serveErr := httpServer.Serve(httpListener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", serveErr)
		}
		return nil
	})
	if grpcServer != nil {
		group.Go(func() error {
			runtime.Logger.Info("gRPC server starting", zap.String("listen_addr", grpcListener.Addr().String()))
			if serveErr := grpcServer.Serve(grpcListener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", serveErr)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		runtime.Logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			runtime.Logger.Warn("http shutdown error", zap.Error(shutdownErr))
		}
		if grpcServer != nil {
			gracefulStop(shutdownCtx, grpcServer)
		}
		return nil
	})
	return group.Wait()
}

func (runtime *Runtime) newHTTPServer() (*http.Server, error) {
	cfg := runtime.Config
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := httpapi.NewHandler(httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminIDs:       cfg.AdminIDs,
		AdminRole:      cfg.AdminRole,
		RequestTimeout: cfg.RequestTimeout,
	}, runtime.Engine, runtime.Logger)
	return &http.Server{
		Handler:           httpapi.NewRouter(handler, validator),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}, nil
}

func (runtime *Runtime) newGRPCServer() (*grpc.Server, error) {
	cfg := runtime.Config
	authenticator, err := grpcserver.NewAuthenticator(grpcserver.AuthConfig{
		SigningKey: []byte(cfg.TokenSigningKey),
		Issuer:     cfg.TokenIssuer,
		AdminIDs:   cfg.AdminIDs,
		AdminRole:  cfg.AdminRole,
	}, runtime.Engine, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("grpc auth: %w", err)
	}
	server := grpc.NewServer(grpc.UnaryInterceptor(authenticator.UnaryInterceptor()))
	grpcserver.RegisterPointsService(server, grpcserver.NewPointsServiceServer(runtime.Engine, runtime.Logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcserver.ServiceName, healthgrpc.HealthCheckResponse_SERVING)
	healthgrpc.RegisterHealthServer(server, healthServer)
	return server, nil
}

func (runtime *Runtime) applyCatalog(ctx context.Context) error {
	if runtime.Config.CatalogFile == "" {
		return nil
	}
	loaded, err := catalog.LoadFile(runtime.Config.CatalogFile)
	if err != nil {
		return err
	}
	if err := loaded.Apply(ctx, runtime.Engine); err != nil {
		return err
	}
	runtime.Logger.Info("catalog applied",
		zap.String("file", runtime.Config.CatalogFile),
		zap.Int("rewards", len(loaded.Rewards)),
		zap.Int("rate_card", len(loaded.RateCard)))
	return nil
}

func openDatabase(ctx context.Context, cfg Config, logger *zap.Logger) (*database.Database, error) {
	gormLevel, err := logging.ParseGormLevel(cfg.GormLogLevel)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		GormLogger: logging.NewGormLogger(logger, gormLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	return db, nil
}

func newEngine(cfg Config, db *database.Database, logger *zap.Logger) (*points.Engine, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := func() time.Time { return time.Now().UTC() }
	engine, err := points.NewEngine(gormstore.New(db.Gorm), clock,
		points.WithLocation(location),
		points.WithDefaultCapacity(cfg.DefaultCapacity),
		points.WithCoworkingCost(cfg.CoworkingCost),
		points.WithWeeklyAllowance(cfg.WeeklyAllowance),
		points.WithRetryPolicy(cfg.RetryAttempts, defaultRetryBaseDelay),
		points.WithOperationLogger(logging.NewOperationLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("engine init: %w", err)
	}
	return engine, nil
}

// gracefulStop drains in-flight calls until ctx expires, then stops hard.
func gracefulStop(ctx context.Context, server *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		server.Stop()
	}
}
