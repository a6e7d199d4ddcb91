package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"motorshield/host/api"
	"motorshield/host/client"
	"motorshield/host/config"
	"motorshield/host/logging"
	"motorshield/host/sim"
	"motorshield/protocol"
)

var (
	configPath = flag.String("config", "", "Shield profile (YAML)")
	device     = flag.String("device", "", "Serial device path (overrides the profile)")
	useSim     = flag.Bool("sim", false, "Run against an in-process simulated board")
	serve      = flag.Bool("serve", false, "Serve the HTTP API instead of the shell")
	setup      = flag.Bool("setup", false, "Apply the profile's shields and motors on start")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Device = *device
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := logging.InitLogger("shield-host", level)
	logger.Debug().Str("protocol", protocol.Version).Bool("sim", *useSim).Msg("starting")

	trace := logging.NewTraceSink(logger, cfg.TraceFile)
	defer trace.Close()

	cl, closeLink, err := connect(cfg, trace, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer closeLink()

	if *setup {
		if err := cl.ApplyProfile(cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to apply profile")
		}
	}

	if *serve {
		runServer(cfg, cl, logger)
		return
	}

	newShell(cl, cfg).Run()
}

// connect opens the serial device, or starts a simulated board when -sim is
// set. The returned func closes both ends.
func connect(cfg *config.Config, trace *logging.TraceSink, logger zerolog.Logger) (*client.Client, func(), error) {
	opts := []client.Option{
		client.WithAckTimeout(cfg.AckTimeout),
		client.WithLogger(logger.With().Str("component", "client").Logger()),
	}

	if *useSim {
		addrs := cfg.Addresses()
		if len(addrs) == 0 {
			for addr := config.MinAddress; addr <= config.MaxAddress; addr++ {
				addrs = append(addrs, uint8(addr))
			}
		}
		s := sim.Start(sim.Config{
			Addresses: addrs,
			AlwaysAck: cfg.AlwaysAck,
			Trace:     trace.Write,
			Logger:    &logger,
		})
		cl := client.New(s.Conn(), opts...)
		return cl, func() {
			cl.Close()
			s.Close()
		}, nil
	}

	if cfg.Device == "" {
		return nil, nil, fmt.Errorf("no serial device: set -device, SHIELD_DEVICE or device in the profile")
	}
	logger.Info().Str("device", cfg.Device).Int("baud", cfg.Baud).Msg("connecting")
	cl, err := client.Dial(cfg.Serial(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return cl, func() { cl.Close() }, nil
}

func runServer(cfg *config.Config, cl *client.Client, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewRouter(cl, logger.With().Str("component", "api").Logger()),
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		srv.Close()
	}()

	logger.Info().Str("listen", cfg.Listen).Msg("serving")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server stopped")
	}
}
