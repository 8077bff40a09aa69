package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"scoutd/internal/common/logutil"
	"scoutd/internal/config"
	"scoutd/internal/handler"
	"scoutd/internal/healthapi"
	"scoutd/internal/loader"
	"scoutd/internal/runtime"
	"scoutd/internal/worker"
)

const version = "1.0.0"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "scoutd",
		Short:         "serverless text-generation worker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (json, yaml or toml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "load the model on demand and process platform jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	check := &cobra.Command{
		Use:   "check-config",
		Short: "resolve and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(configPath)
		},
	}

	root.AddCommand(serve, check)
	return root
}

func runServe(configPath string) error {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return err
	}
	log := logutil.New(cfg.Log)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Msg("config: " + e.Error())
		}
		return fmt.Errorf("configuration invalid (%d problems)", len(errs))
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: "scoutd@" + version,
		}); err != nil {
			log.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	log.Info().Fields(cfg.Summary()).Bool("runtime_available", runtime.Available()).Msg("starting scoutd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate := loader.New(cfg, runtime.NewFactory(cfg, log), log)

	health := healthapi.New(cfg, gate, log)
	go func() {
		// A dead probe endpoint degrades scheduling but jobs still flow,
		// so the worker keeps running.
		if err := health.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	if cfg.Autoload {
		if err := gate.EnsureLoaded(ctx); err != nil {
			// The handler retries the load on the first job.
			log.Error().Err(err).Msg("model autoload failed")
		} else if cfg.Server.ModelWarmup {
			gate.Warmup(ctx, cfg.Server.WarmupPrompt)
		}
	}

	h := handler.New(cfg, gate, log)
	w := worker.New(cfg.Platform, h.Handle, log)
	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker loop failed")
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func runCheckConfig(configPath string) error {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return err
	}
	out, _ := json.MarshalIndent(cfg.Summary(), "", "  ")
	fmt.Println(string(out))

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "invalid: %v\n", e)
		}
		return fmt.Errorf("configuration invalid (%d problems)", len(errs))
	}
	fmt.Println("configuration OK")
	return nil
}
