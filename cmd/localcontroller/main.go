// Command localcontroller runs the C8 LC Role Runtime: a transparent
// store-and-forward proxy that sits between a fleet of charge points and
// a single upstream Central System, per spec.md §4.5.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/evstack/ocpp16/internal/localcontroller"
	"github.com/evstack/ocpp16/internal/logger"
)

func main() {
	addr := pflag.String("addr", ":8888", "address the LC listens on for charge point connections")
	path := pflag.String("path", "/ocpp", "URL path prefix charge points connect under")
	csBaseURL := pflag.String("cs-url", "", "upstream Central System base WebSocket URL (required)")
	csDialTimeout := pflag.Duration("cs-dial-timeout", 10*time.Second, "timeout for dialing the upstream Central System")
	logLevel := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	if *csBaseURL == "" {
		fmt.Println("Error: --cs-url is required")
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := log.GetLogger()

	cfg := localcontroller.DefaultServerConfig(*csBaseURL)
	cfg.Addr = *addr
	cfg.Path = *path
	cfg.PairConfig.CSDialTimeout = *csDialTimeout

	server := localcontroller.NewServer(cfg, zlog)

	go func() {
		log.Infof("Local Controller listening on %s%s, forwarding to %s", cfg.Addr, cfg.Path, cfg.CSBaseURL)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Local Controller server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down Local Controller...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down Local Controller server: %v", err)
	}
	log.Info("Local Controller gracefully stopped.")
}
