package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aeolun/wirechat/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	// Configure logger with microsecond precision
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	// Command line flags
	configPath := flag.String("config", "~/.wirechat/server.toml", "Path to config file")
	host := flag.String("host", "", "Address to bind (overrides config)")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	wsPort := flag.Int("ws-port", -1, "WebSocket port, 0 disables (overrides config)")
	metricsPort := flag.Int("metrics-port", -1, "Metrics port, 0 disables (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("WireChat Server %s\n", Version)
		os.Exit(0)
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	resolvedConfigPath, err := server.ExpandPath(*configPath)
	if err != nil {
		log.Fatalf("Failed to resolve config path: %v", err)
	}
	if absPath, err := filepath.Abs(resolvedConfigPath); err == nil {
		resolvedConfigPath = absPath
	}

	// Command-line flags override config file
	if *host != "" {
		config.Server.Host = *host
	}
	if *port != 0 {
		config.Server.TCPPort = *port
	}
	if *wsPort >= 0 {
		config.Server.WebSocketPort = *wsPort
	}
	if *metricsPort >= 0 {
		config.Server.MetricsPort = *metricsPort
	}

	serverConfig := config.ToServerConfig()
	srv := server.NewServer(serverConfig)

	if *debug {
		srv.EnableDebugLogging()
		log.Printf("Debug logging enabled")
	}

	log.Printf("Config: %s (resolved to %s, using defaults if not found)", *configPath, resolvedConfigPath)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("WireChat server %s started successfully", Version)
	log.Printf("Available connection methods:")
	log.Printf("  - TCP: %s", srv.Addr())
	if serverConfig.WebSocketPort > 0 {
		log.Printf("  - WebSocket: port %d (ws://server:%d/ws)", serverConfig.WebSocketPort, serverConfig.WebSocketPort)
	}
	if serverConfig.MetricsPort > 0 {
		log.Printf("Metrics: http://%s:%d/metrics", serverConfig.Host, serverConfig.MetricsPort)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
