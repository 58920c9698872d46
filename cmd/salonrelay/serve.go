package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/config"
	"github.com/rsclarke/salonrelay/internal/db"
	"github.com/rsclarke/salonrelay/internal/logging"
	"github.com/rsclarke/salonrelay/internal/pairing"
	"github.com/rsclarke/salonrelay/internal/relay"
	"github.com/rsclarke/salonrelay/internal/server"
	"github.com/rsclarke/salonrelay/internal/status"
	"github.com/rsclarke/salonrelay/internal/tenant"
	"github.com/rsclarke/salonrelay/internal/whatsapp"
)

const (
	serviceName     = "Salon WhatsApp Relay"
	shutdownTimeout = 30 * time.Second
)

var serveFlags struct {
	backendURL    string
	dataDir       string
	tenantsFile   string
	adminPort     int
	statusBackend string
	redisAddr     string
	qrTerminal    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every salon session and the HTTP listeners",
	Long: `Start one WhatsApp session per configured salon, each with its own
control listener on the salon's port, plus the admin listener.

Settings come from SALONRELAY_* environment variables; flags override them.
Each salon keeps its WhatsApp credentials and relay journal in
<data-dir>/<client-id>.db.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveFlags.backendURL, "backend-url", "", "booking backend base URL")
	f.StringVar(&serveFlags.dataDir, "data-dir", "", "directory for per-salon databases and status files")
	f.StringVar(&serveFlags.tenantsFile, "tenants", "", "YAML tenants file (built-in salons when unset)")
	f.IntVar(&serveFlags.adminPort, "admin-port", 0, "admin listener port (0 disables)")
	f.StringVar(&serveFlags.statusBackend, "status-backend", "", "connection status backend: file or redis")
	f.StringVar(&serveFlags.redisAddr, "redis-addr", "", "Redis address for the redis status backend")
	f.BoolVar(&serveFlags.qrTerminal, "qr-terminal", false, "print pairing QR codes to the terminal")
}

// serveConfig loads the environment and applies any flags that were set.
func serveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("backend-url") {
		cfg.BackendURL = serveFlags.backendURL
	}
	if f.Changed("data-dir") {
		cfg.DataDir = serveFlags.dataDir
	}
	if f.Changed("tenants") {
		cfg.TenantsFile = serveFlags.tenantsFile
	}
	if f.Changed("admin-port") {
		cfg.AdminPort = serveFlags.adminPort
	}
	if f.Changed("status-backend") {
		cfg.StatusBackend = serveFlags.statusBackend
	}
	if f.Changed("redis-addr") {
		cfg.RedisAddr = serveFlags.redisAddr
	}
	if f.Changed("qr-terminal") {
		cfg.QRTerminal = serveFlags.qrTerminal
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	reg, err := tenant.LoadFile(cfg.TenantsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, closeStore, err := openStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var onQR func(tenant.Config, string)
	if cfg.QRTerminal {
		onQR = printQR
	}

	httpClient := relay.NewHTTPClient()
	var (
		sessions []*pairing.Session
		tenants  []server.Tenant
	)
	for _, t := range reg.All() {
		database, err := db.Open(cfg.DBPath(t.ClientID))
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		defer closeDB(database, t)

		container, err := whatsapp.OpenStore(ctx, database, logger.With(logging.Tenant(t.ID)))
		if err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}

		journal := relay.NewSQLiteJournal(database)
		sess := pairing.NewSession(t, pairing.Options{
			Client: whatsapp.NewClient(t, database, container, logger),
			Store:  store,
			Relayer: relay.New(relay.Config{
				BackendURL: cfg.BackendURL,
				Timeout:    cfg.WebhookTimeout,
				Logger:     logger,
				Journal:    journal,
				HTTPClient: httpClient,
			}),
			Logger:         logger,
			Policy:         cfg.RetryPolicy(),
			ReconnectDelay: cfg.ReconnectDelay,
			OnQR:           onQR,
		})
		sessions = append(sessions, sess)
		tenants = append(tenants, server.Tenant{Session: sess, Journal: journal})
	}

	control := server.NewControlServer(serviceName, cfg.BackendURL, logger.Named("server"), tenants...)

	var servers []*server.ManagedServer
	shutdownServers := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
	}

	start := func(name string, port int, h http.Handler) error {
		srv := server.NewManagedServer(name, server.DefaultServerConfig(
			fmt.Sprintf(":%d", port), h, logger.Named(name)))
		if err := srv.Start(); err != nil {
			return err
		}
		servers = append(servers, srv)
		return nil
	}

	for _, t := range reg.All() {
		h, err := control.TenantHandler(t.ID)
		if err != nil {
			shutdownServers()
			return err
		}
		if err := start(t.ID, t.Port, h); err != nil {
			shutdownServers()
			return err
		}
		logger.Info("salon listener started",
			logging.Tenant(t.ID), logging.Port(t.Port),
			zap.String("qr_url", fmt.Sprintf("http://localhost:%d/qr", t.Port)))
	}
	if cfg.AdminPort > 0 {
		if err := start("admin", cfg.AdminPort, control.AdminHandler()); err != nil {
			shutdownServers()
			return err
		}
		logger.Info("admin listener started", logging.Port(cfg.AdminPort))
	}

	serveErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			if err := <-srv.Err(); err != nil {
				serveErr <- err
			}
		}()
	}

	manager := pairing.NewManager(sessions...)
	runErr := make(chan error, 1)
	go func() {
		runErr <- manager.Run(ctx)
	}()

	logger.Info("relay running",
		zap.Int("tenants", reg.Len()),
		logging.URL(cfg.BackendURL),
		zap.String("status_backend", cfg.StatusBackend))

	var exitErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("listener failed", zap.Error(err))
		exitErr = err
	case err := <-runErr:
		runErr <- err
		if err != nil {
			logger.Error("sessions stopped", zap.Error(err))
			exitErr = err
		}
	}

	shutdownServers()
	stop()

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) && exitErr == nil {
			exitErr = err
		}
	case <-time.After(shutdownTimeout):
		logger.Warn("sessions did not stop in time")
	}
	return exitErr
}

func openStatusStore(ctx context.Context, cfg config.Config) (status.Store, func(), error) {
	switch cfg.StatusBackend {
	case config.StatusBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		store := status.NewRedisStore(rdb, cfg.RedisPrefix, logger.Named("status"))
		return store, func() { rdb.Close() }, nil
	default:
		store, err := status.NewFileStore(cfg.StatusDir(), logger.Named("status"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func closeDB(database *sql.DB, t tenant.Config) {
	if err := database.Close(); err != nil {
		logger.Warn("failed to close database", logging.Tenant(t.ID), zap.Error(err))
	}
}

func printQR(t tenant.Config, code string) {
	fmt.Fprintf(os.Stdout, "\nScan to link %s (%s):\n", t.Name, t.ID)
	qrterminal.Generate(code, qrterminal.L, os.Stdout)
}
