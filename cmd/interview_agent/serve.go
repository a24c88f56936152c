package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jasonlvhit/gocron"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/billing"
	"github.com/jonathan/interview-pilot/internal/config"
	"github.com/jonathan/interview-pilot/internal/evaluation"
	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/logger"
	"github.com/jonathan/interview-pilot/internal/server"
	"github.com/jonathan/interview-pilot/internal/session"
	"github.com/jonathan/interview-pilot/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the interview session, dashboard and billing endpoints for the web client.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.JSON, cfg.Debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	gw := gateway.New(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout(),
	}, log)

	var st *store.Store
	var checkpoints session.CheckpointStore
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st, err = store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		checkpoints = st
	} else {
		log.Warn("no database configured, sessions are memory-only and accounts are disabled")
	}

	hub := evaluation.NewHub(gw, evaluation.Config{
		RampInterval: cfg.Evaluation.RampInterval(),
		RampStep:     cfg.Evaluation.RampStep,
		Cap:          cfg.Evaluation.RampCap,
	}, log)

	registry := session.NewRegistry(gw, checkpoints, log,
		session.WithEvaluatorFactory(hub.Evaluator),
		session.WithMachineOptions(session.WithListener(hub.ReleaseWhenTerminal())),
	)

	catalog, err := billing.LoadCatalog(cfg.Billing.PlansFile)
	if err != nil {
		return err
	}
	coordinator := billing.NewCoordinator(gw, catalog, billing.Config{
		LoginURL:   cfg.Server.LoginURL,
		ContactURL: cfg.Billing.ContactURL,
	}, log)

	srv, err := server.New(server.Config{Port: cfg.Server.Port}, server.Deps{
		Logger:   log,
		Gateway:  gw,
		Registry: registry,
		Hub:      hub,
		Store:    st,
		Billing:  coordinator,
		Plans:    catalog,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.Session.ReaperEnabled {
		reaper := session.NewReaper(registry, time.Duration(cfg.Session.MaxIdleHours)*time.Hour, log)
		if err := gocron.Every(uint64(cfg.Session.ReaperIntervalHours)).Hours().Do(reaper.Run); err != nil {
			return fmt.Errorf("scheduling session reaper: %w", err)
		}
		go func() { <-gocron.Start() }()
		defer gocron.Clear()
		log.Info("session reaper scheduled",
			zap.Int("interval_hours", cfg.Session.ReaperIntervalHours),
			zap.Int("max_idle_hours", cfg.Session.MaxIdleHours),
		)
	}

	return srv.Start()
}
