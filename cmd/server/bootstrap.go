package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/api"
	"github.com/charlesng35/proctorrelay/internal/app"
	"github.com/charlesng35/proctorrelay/internal/app/maintenance"
	iauth "github.com/charlesng35/proctorrelay/internal/auth"
	"github.com/charlesng35/proctorrelay/internal/database"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/internal/services"
	"github.com/charlesng35/proctorrelay/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Hub      *realtime.Hub
	Reporter *maintenance.Reporter
	Router   *gin.Engine
}

// bootstrapRuntime opens the database, builds the relay hub and the HTTP router, and
// starts the stats reporter.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	rooms, err := services.NewRoomService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise room service: %w", err)
	}

	stack.Hub = realtime.NewHub(realtime.NewDirectory(), cfg.HubOptions())

	db := stack.DB
	stack.Reporter = maintenance.NewReporter(stack.Hub.Directory(),
		maintenance.WithSchedule(cfg.Monitoring.StatsSchedule),
		maintenance.WithRoomCounter(rooms),
		maintenance.WithPinger(func(ctx context.Context) error { return database.Ping(ctx, db) }),
	)
	if err := stack.Reporter.Start(); err != nil {
		return nil, fmt.Errorf("start stats reporter: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown closes live sessions, stops background jobs and releases resources. Every
// step runs even when an earlier one fails.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var err error
	if s.Hub != nil {
		if hubErr := s.Hub.Shutdown(ctx); hubErr != nil {
			log.Warn("relay sessions did not close in time", zap.Error(hubErr))
			err = multierr.Append(err, fmt.Errorf("shutdown hub: %w", hubErr))
		}
	}

	if s.Reporter != nil {
		select {
		case <-s.Reporter.Stop().Done():
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("stop stats reporter: %w", ctx.Err()))
		}
	}

	if s.DB != nil {
		if dbErr := closeDatabase(s.DB, log); dbErr != nil {
			err = multierr.Append(err, dbErr)
		}
	}
	return err
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Ping(ctx, db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	if dbCfg.Driver == "" || dbCfg.Driver == "sqlite" {
		if inferred := driverFromDSN(dbCfg.DSN); inferred != "" {
			dbCfg.Driver = inferred
		}
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

// driverFromDSN recognises URL-style DSNs such as a DATABASE_URL exported for the
// account service.
func driverFromDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql"
	default:
		return ""
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) error {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
