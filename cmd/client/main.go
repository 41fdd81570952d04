package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/wirechat/pkg/client"
	"github.com/aeolun/wirechat/pkg/client/ui"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", client.DefaultConfigPath(), "Path to config file")
	server := flag.String("server", "", "Server address: host[:port] or ws://host[:port][/path] (overrides config)")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	debugPath := flag.String("debug-log", "", "Write connection debug logs to this file")
	resetConfig := flag.Bool("reset-config", false, "Back up the config file and rewrite it with defaults")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("WireChat Client %s\n", Version)
		os.Exit(0)
	}

	if *resetConfig {
		if err := client.ResetConfigToDefault(*configPath, true); err != nil {
			log.Fatalf("Failed to reset config: %v", err)
		}
		fmt.Printf("Config reset to defaults: %s\n", *configPath)
		os.Exit(0)
	}

	config, err := client.LoadClientConfig(*configPath)
	if err != nil {
		var cfgErr *client.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Config error in %s\n", cfgErr.Error())
			fmt.Fprintln(os.Stderr, "Fix the file or run with -reset-config to restore defaults.")
			os.Exit(1)
		}
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := config.GetServerAddress()
	if *server != "" {
		addr = *server
	}

	conn, err := client.NewConnection(addr)
	if err != nil {
		log.Fatalf("Invalid server address: %v", err)
	}
	conn.SetDialTimeout(config.DialTimeout())

	if *debugPath != "" {
		f, err := os.OpenFile(*debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open debug log: %v", err)
		}
		defer f.Close()
		conn.SetLogger(log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds))
	}

	if err := conn.Connect(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	styles := client.NewStyles(os.Stdout, config.UI.Color && !*noColor)
	runErr := ui.Run(ctx, conn, styles, config.UI.Prompt)
	conn.Close()

	fmt.Println(styles.Muted.Render(fmt.Sprintf("Sent %s, received %s",
		client.FormatBytes(conn.GetBytesSent()), client.FormatBytes(conn.GetBytesReceived()))))

	if runErr != nil {
		if errors.Is(runErr, ui.ErrConnectionLost) {
			if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		}
		os.Exit(1)
	}
}
