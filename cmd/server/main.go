package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Recorder/internal/adapters/http"
	"github.com/dkeye/Recorder/internal/adapters/codec"
	"github.com/dkeye/Recorder/internal/adapters/ice"
	signalclient "github.com/dkeye/Recorder/internal/adapters/signal"
	"github.com/dkeye/Recorder/internal/app"
	"github.com/dkeye/Recorder/internal/app/recording"
	"github.com/dkeye/Recorder/internal/app/session"
	"github.com/dkeye/Recorder/internal/config"
)

var configEnv string

var rootCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Joins conferences and negotiates media sessions for recording",
	Long: `recorder connects to the conference signaling gateway, joins rooms on
request and answers the focus's session offers so that audio and video
can be recorded. Recording is controlled over the HTTP API.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", "", "config environment, loads config/config.<env>.yaml (default $CONFIG_ENV or dev)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configEnv)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	engine, err := ice.NewEngine(ice.Config{
		PortMin:       cfg.PortMin,
		PortMax:       cfg.PortMax,
		Components:    cfg.Components,
		STUNServers:   cfg.STUNServers,
		GatherTimeout: cfg.GatherTimeout,
		LoggerFactory: ice.LoggerFactory{Level: level},
	})
	if err != nil {
		return fmt.Errorf("ice engine: %w", err)
	}

	client := signalclient.NewClient(cfg.SignalURL, nil)
	reg := app.NewRegistry(client, engine, codec.NewResolver(), session.Config{
		Nickname:         cfg.Nickname,
		ConferenceDomain: cfg.ConferenceDomain,
		InboxSize:        cfg.InboxSize,
		ConnectTimeout:   cfg.ConnectTimeout,
	}, app.SimplePolicy{CloseOnFailure: cfg.CloseOnFailure})

	if err := client.Connect(ctx, reg); err != nil {
		return fmt.Errorf("signal gateway: %w", err)
	}

	ctl := recording.NewController(reg,
		recording.NewRateLimiter(cfg.StartRateLimit, cfg.StartRateInterval),
		cfg.OutputDir)

	r := router.SetupRouter(cfg, reg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Recorder started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Error().Msg("signal gateway connection lost")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("sessions did not close cleanly")
	}
	_ = client.Close()
	log.Info().Msg("Server exited gracefully")
	return nil
}
