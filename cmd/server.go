package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mubeen104/uips-attendance/internal/audit"
	"github.com/mubeen104/uips-attendance/internal/config"
	"github.com/mubeen104/uips-attendance/internal/enroll"
	"github.com/mubeen104/uips-attendance/internal/ingest"
	"github.com/mubeen104/uips-attendance/internal/notify"
	"github.com/mubeen104/uips-attendance/internal/protocol/adms"
	"github.com/mubeen104/uips-attendance/internal/protocol/registry"
	"github.com/mubeen104/uips-attendance/internal/reconcile"
	"github.com/mubeen104/uips-attendance/internal/routes"
	"github.com/mubeen104/uips-attendance/internal/storage"
	"github.com/mubeen104/uips-attendance/internal/syncer"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the attendance engine server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ServerMain(ctx, provider)
	},
}

// Initialize logger
func initLogger(cfg *config.Config) *slog.Logger {
	// Determine level from config and set it on the handler options.
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		println("Invalid log level in config, defaulting to INFO")
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	slog.Debug("Logger initialized", "level", level.String())
	return logger
}

func securityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")

	// Disable caching; every surface here is live device or attendance state
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Next()
}

// NewNotifierFromConfig returns the mailer when SMTP is configured, the
// logging fallback otherwise.
func NewNotifierFromConfig(cfg *config.Config) notify.Notifier {
	if cfg.Email.Host == "" {
		slog.Warn("No SMTP host configured, notifications go to the log")
		return notify.LogNotifier{}
	}
	return notify.NewMailer(cfg.Email)
}

// NewEngineFromConfig assembles the service bundle shared by the HTTP
// surface and the CLI commands.
func NewEngineFromConfig(cfg *config.Config, storageProvider storage.Provider) (*routes.Engine, error) {
	commands := adms.NewCommandQueue()
	adapters := registry.New(cfg, commands)
	notifier := NewNotifierFromConfig(cfg)

	pipeline := ingest.NewPipeline(storageProvider,
		time.Duration(cfg.Attendance.GraceMinutes)*time.Minute)

	orchestrator := enroll.NewOrchestrator(storageProvider, adapters, notifier,
		cfg.Enroll.MinQuality,
		time.Duration(cfg.Enroll.TimeoutSeconds)*time.Second)

	policy, err := reconcile.LoadLeavePolicy(cfg.Attendance.LeavePolicyFile)
	if err != nil {
		return nil, err
	}
	reconciler := reconcile.New(storageProvider, policy, notifier)

	coordinator := syncer.New(storageProvider, adapters, pipeline,
		cfg.Sync.MaxConcurrent,
		time.Duration(cfg.Sync.MinIntervalSeconds)*time.Second,
		time.Duration(cfg.Sync.ConnectTimeoutSeconds)*time.Second)

	return &routes.Engine{
		Adapters:   adapters,
		Commands:   commands,
		Pipeline:   pipeline,
		Enroll:     orchestrator,
		Syncer:     coordinator,
		Reconciler: reconciler,
		Audit:      audit.NewRecorder(storageProvider),
	}, nil
}

func ServerMain(ctx context.Context, storageProvider storage.Provider) {

	if config.Cfg == nil {
		panic("Config not initialized.")
	}
	initLogger(config.Cfg)

	// Use the provider passed from cobra command (already initialized)
	if storageProvider == nil {
		slog.Error("Storage provider is nil")
		os.Exit(1)
	}

	engine, err := NewEngineFromConfig(config.Cfg, storageProvider)
	if err != nil {
		slog.Error("Failed to assemble engine", "error", err)
		os.Exit(1)
	}

	// The pull scheduler and the nightly reconciliation run for the life of
	// the server.
	go engine.Syncer.Run(ctx)
	go reconcile.NewScheduler(engine.Reconciler, config.Cfg.Attendance.ReconcileTime).Run(ctx)

	server := gin.Default()
	server.Use(securityHeaders)

	// Middleware to inject storage provider and engine into context
	server.Use(func(c *gin.Context) {
		c.Set("Storage", storageProvider)
		c.Next()
	}, func(c *gin.Context) {
		c.Set("Engine", engine)
		c.Next()
	})

	routes.RegisterRoutes(server)

	if err := server.Run(config.Cfg.Listen); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
