// cisternd is the water-controller daemon: it loads its NV store, boots
// the persistence log, opens the serial link, and runs the dispatcher's
// read/process/write cycle until signalled to stop. Adapted from the
// teacher's cmd/hermod-edge/main.go: same flag/config/signal-handling
// shape, restructured around a single serial link and the supervisory
// core instead of a registry of pluggable workflows.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/cistern/internal/config"
	"github.com/user/cistern/internal/housekeeping"
	"github.com/user/cistern/internal/logging"
	"github.com/user/cistern/internal/observability"
	"github.com/user/cistern/internal/serialport"
	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/dispatcher"
	"github.com/user/cistern/pkg/manager"
	"github.com/user/cistern/pkg/nvstore"
	"github.com/user/cistern/pkg/persist"
	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/xerr"
)

func main() {
	configPath := flag.String("config", "", "path to cisternd yaml config (optional)")
	portFlag := flag.String("port", "", "serial device path, or \"-\" for the stdin/stdout loopback harness")
	baudFlag := flag.Int("baud", 0, "serial baud rate")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			os.Stderr.WriteString("cisternd: " + err.Error() + "\n")
			os.Exit(1)
		}
		cfg = loaded
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *baudFlag != 0 {
		cfg.Serial.Baud = *baudFlag
	}

	bootID := uuid.NewString()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	logger.Info("starting cisternd", "boot_id", bootID, "serial_port", cfg.Serial.Port, "persistence_backend", cfg.Persistence.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.ServiceName)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	store, err := openStore(cfg.Persistence)
	if err != nil {
		logger.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}

	clk := clock.NewSystem()
	reg := pinio.NewRegistry()
	exceptions := xerr.NewChannel()
	mgr := manager.New(clk, reg, exceptions)
	log := persist.New(store)

	d := dispatcher.New(mgr, exceptions, log, logger)
	if err := d.Boot(); err != nil {
		logger.Warn("boot replay failed, persistence log cleared", "error", err)
	}

	hk := housekeeping.New(mgr, logger)
	if err := hk.Start(""); err != nil {
		logger.Error("failed to start housekeeping scheduler", "error", err)
		os.Exit(1)
	}
	defer hk.Stop()

	if cfg.Observability.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down cisternd", "boot_id", bootID)
		cancel()
	}()

	rw, err := openSerial(cfg.Serial)
	if err != nil {
		logger.Error("failed to open serial port", "error", err)
		os.Exit(1)
	}
	defer rw.Close()

	if err := d.Run(ctx, rw, rw, time.Now); err != nil && err != context.Canceled {
		logger.Error("dispatcher run loop exited with error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.PersistenceConfig) (nvstore.Store, error) {
	switch cfg.Backend {
	case "file":
		return nvstore.OpenFile(cfg.Path, persist.Size)
	case "sqlite":
		return nvstore.OpenSQLitePage(cfg.Path, persist.Size)
	default:
		return nvstore.NewMemory(persist.Size), nil
	}
}

type readWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func openSerial(cfg config.SerialConfig) (readWriteCloser, error) {
	if cfg.Port == "-" || cfg.Port == "" {
		return &stdioPort{}, nil
	}
	return serialport.Open(cfg.Port, cfg.Baud)
}

// stdioPort lets "-port -" drive the dispatcher over the process's own
// stdin/stdout, the loopback test-harness mode SPEC_FULL.md §4.14 calls
// for.
type stdioPort struct{}

func (stdioPort) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioPort) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioPort) Close() error                { return nil }
