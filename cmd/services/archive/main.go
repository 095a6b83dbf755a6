package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/disks"
	"github.com/ngasd/ngasd/internal/handlers"
	"github.com/ngasd/ngasd/internal/inventory"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/models"
	"github.com/ngasd/ngasd/internal/node"
	"github.com/ngasd/ngasd/internal/notification"
	"github.com/ngasd/ngasd/internal/registry"
	"github.com/ngasd/ngasd/internal/router"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	handlers.Version = Version

	logger.Info("Archive node starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime, "host_id", cfg.Node.HostID)

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to create root directory", "root_dir", cfg.Node.RootDir, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Metadata store
	gateway, err := metadata.NewGateway(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open metadata store", "backend", cfg.Metadata.Backend, "error", err)
	}
	defer func() { _ = gateway.Close() }()
	logger.Info("Metadata store ready", "backend", cfg.Metadata.Backend)

	// 4. Notifications
	notifier, closeNotifier, err := notification.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create notifier", "error", err)
	}
	defer func() { _ = closeNotifier() }()

	// 5. Disk core
	topo := disks.TopologyFromConfig(cfg)
	settings := disks.SettingsFromConfig(cfg)
	space := inventory.StatfsSpace{}
	selector := disks.NewSelector(topo, settings, gateway, notifier, nil, logger)

	n := node.New(node.Options{
		HostID:     cfg.Node.HostID,
		Prober:     inventory.NewDirProber(inventory.SlotsFromConfig(cfg), cfg.Inventory.InitDiskIDs, logger),
		Reconciler: disks.NewReconciler(topo, settings, gateway, space, notifier, selector, logger),
		Selector:   selector,
		Status:     disks.NewStatusUpdater(gateway, space, logger),
		Dumper:     disks.NewDumper(gateway, notifier, cfg.Node.RootDir, logger),
		Registrar:  newRegistrar(cfg, gateway, logger),
		Logger:     logger,
	})

	// 6. Go Online
	if cfg.Node.AutoOnline {
		onlineCtx, onlineCancel := context.WithTimeout(ctx, 5*time.Minute)
		if _, err := n.Online(onlineCtx); err != nil {
			// Stay up so the operator can fix the disks and retry through /admin/online
			logger.Error("Failed to bring node Online", "error", err)
		}
		onlineCancel()
	}

	// 7. Admin HTTP server
	app := router.New(logger, n, gateway, *cfg)
	go func() {
		addr := cfg.GetServerAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 8. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := n.Offline(shutdownCtx); err != nil {
		logger.Error("Failed to bring node Offline", "error", err)
	}

	logger.Info("Archive node stopped")
}

// newRegistrar publishes the node in etcd when the metadata store lives there
func newRegistrar(cfg *config.Config, gateway metadata.Gateway, logger *logging.Logger) node.Registrar {
	etcdGateway, ok := gateway.(*metadata.EtcdGateway)
	if !ok {
		logger.Info("Node registration disabled, metadata backend is not etcd", "backend", cfg.Metadata.Backend)
		return nil
	}

	info := models.NodeInfo{
		HostID:  cfg.Node.HostID,
		Address: advertiseAddress(logger, &cfg.Server),
		State:   string(node.StateOffline),
		Version: Version,
	}
	scanner := registry.NewDiskScanner(gateway, cfg.Node.HostID, cfg.Node.RootDir, logger)
	return registry.NewNodeRegistration(etcdGateway.Client(), info, scanner, logger)
}

// advertiseAddress returns the address published for this node
func advertiseAddress(logger *logging.Logger, serverCfg *config.ServerConfig) string {
	if serverCfg.AdvertiseHost != "" {
		return fmt.Sprintf("%s:%d", serverCfg.AdvertiseHost, serverCfg.HTTPPort)
	}
	if serverCfg.Host != "" && serverCfg.Host != "0.0.0.0" {
		return fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.HTTPPort)
	}

	host := getOutboundIP()
	if host == "" {
		host, _ = os.Hostname()
	}
	addr := fmt.Sprintf("%s:%d", host, serverCfg.HTTPPort)
	logger.Info("Auto-detected advertise address", "bind_address", serverCfg.Host, "advertise_address", addr)
	return addr
}

// getOutboundIP gets the non-loopback IP address of this machine by setting
// up a UDP socket towards a public address; no packet is sent.
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() { _ = conn.Close() }()

	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
