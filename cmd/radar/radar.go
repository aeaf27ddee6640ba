package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/baxasd/OST-Radar/internal/config"
	"github.com/baxasd/OST-Radar/internal/db"
	"github.com/baxasd/OST-Radar/internal/fsutil"
	"github.com/baxasd/OST-Radar/internal/monitoring"
	"github.com/baxasd/OST-Radar/internal/mqttsink"
	"github.com/baxasd/OST-Radar/internal/serialmux"
	"github.com/baxasd/OST-Radar/internal/session"
	"github.com/baxasd/OST-Radar/internal/version"
)

var (
	configFile = flag.String("config", config.DefaultConfigPath, "Session config file (.json, .yaml or .yml); missing file means defaults")
	listen     = flag.String("listen", ":8080", "Listen address")
	cliPort    = flag.String("cli-port", "", "CLI serial port (overrides config; empty discovers TI ports)")
	dataPort   = flag.String("data-port", "", "Data serial port (overrides config; empty discovers TI ports)")
	chirpFile  = flag.String("chirp", "", "Chirp profile to send to the radar (overrides config)")
	dbFile     = flag.String("db", "", "Recording database path (overrides config)")
	logFile    = flag.String("log-file", "", "Also write logs to this file, rotated at 10MB")
	replayFile = flag.String("replay", "", "Replay a captured data-port stream instead of opening hardware")
	replayRate = flag.Duration("replay-latency", 5*time.Millisecond, "Delay between replayed reads")
	captureTo  = flag.String("capture", "", "Write the raw data-port stream to this file (.zst compresses)")
	mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL for frame summaries (overrides config)")
	mqttTopic  = flag.String("mqtt-topic", "", "MQTT topic for frame summaries (overrides config)")

	devMigrations      = flag.Bool("dev-migrations", false, "Read migrations from "+db.MigrationsDir+" instead of the embedded copy")
	skipMigrationCheck = flag.Bool("skip-migration-check", false, "Open the recording database even if its schema is out of date")
	showVersion        = flag.Bool("version", false, "Print version and exit")
)

const usageText = `Usage: radar [flags]
       radar migrate <up|down|status|version|force|help> [args]

radar configures a TI mmWave sensor, decodes its frame stream and serves
live diagnostics, recording control and metrics over HTTP.

Flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("radar " + version.String())
		return
	}

	closeLog := setupLogging(*logFile)
	defer closeLog()

	cfg, err := loadConfig(fsutil.OSFileSystem{}, *configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg, overridesFromFlags())
	db.DevMode = *devMigrations

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetRecordDB(), os.Stdout); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
			flag.Usage()
			os.Exit(1)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// setupLogging mirrors the std logger into a rotating file when path is set.
func setupLogging(path string) func() {
	if path == "" {
		return func() {}
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return func() {
		log.SetOutput(os.Stderr)
		rotating.Close()
	}
}

func run(cfg *config.SessionConfig) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var factory serialmux.SerialPortFactory = serialmux.RealSerialPortFactory{ReadTimeout: cfg.GetReadTimeout()}
	if *replayFile != "" {
		factory, cfg = replaySetup(cfg, *replayFile, *replayRate)
		log.Printf("replaying capture %s", *replayFile)
	}

	opts := session.Options{Metrics: monitoring.NewSessionMetrics(registry)}
	capture, err := openCapture(cfg.GetCapturePath())
	if err != nil {
		return err
	}
	if capture != nil {
		defer capture.Close()
		opts.Tap = capture
		log.Printf("capturing data port to %s", cfg.GetCapturePath())
	}
	if *replayFile != "" {
		opts.IdleTimeouts = 3
	}

	sess, err := session.Open(cfg, factory, opts)
	if err != nil {
		return fmt.Errorf("failed to open radar session: %w", err)
	}
	defer sess.Close()
	log.Printf("loaded chirp profile %s\n%s", sess.Profile(), sess.Radar().Summary())

	var store *db.DB
	if path := cfg.GetRecordDB(); path != "" {
		store, err = db.NewDBWithMigrationCheck(path, !*skipMigrationCheck)
		if err != nil {
			return fmt.Errorf("failed to open recording database: %w", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Configure(ctx); err != nil {
		return fmt.Errorf("failed to configure radar: %w", err)
	}
	log.Printf("radar configured with %d frames per second", int(sess.Radar().FrameRateHz()))

	var console serialmux.Console
	if *replayFile != "" {
		console = serialmux.NewDisabledSerialMux("replaying " + *replayFile)
	} else {
		console = serialmux.NewSerialMux(sess.CLIPort())
	}

	srv := newServer(sess, store, cfg)

	var wg sync.WaitGroup

	// decode loop; ends the daemon when the stream does
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session stopped: %v", err)
		}
		log.Print("session routine terminated")
	}()

	// CLI console monitor for the send-command and tail debug routes
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := console.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor CLI port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.watch(ctx)
	}()

	if broker := cfg.GetMQTTBroker(); broker != "" {
		client, err := mqttsink.Dial(mqttsink.Config{
			Broker:   broker,
			ClientID: cfg.GetMQTTClientID(),
			Topic:    cfg.GetMQTTTopic(),
		})
		if err != nil {
			log.Printf("mqtt sink disabled: %v", err)
		} else {
			sink := mqttsink.NewSink(client, cfg.GetMQTTTopic(), 0)
			wg.Add(1)
			go func() {
				defer wg.Done()
				sink.Run(ctx, sess.Hub())
				log.Printf("mqtt sink stopped after %d published, %d failed", sink.Published(), sink.Failed())
			}()
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := srv.ServeMux()
		console.AttachAdminRoutes(mux)
		srv.AttachAdminRoutes(mux, registry)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if rec, err := sess.StopRecording(); err == nil {
		srv.persist(context.Background(), rec)
	}
	st := sess.Stats()
	log.Printf("decoded %d frames (%d parse errors, %d dropped, %d timeouts)",
		st.FramesDecoded, st.ParseErrors, st.Sync.Dropped(), st.Sync.Timeouts)
	log.Printf("Graceful shutdown complete")
	return nil
}
