package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skillforge/pages"
	"github.com/skillforge/pages/config"
	"github.com/skillforge/pages/fichiers"
	"github.com/skillforge/pages/gateway"
	"github.com/skillforge/pages/supervision"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "SkillForge portal and files service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if err = cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if logger, err = config.NewLogger(cfg.Log, verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var portalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Serve the web portal and the files API gateway",
	RunE:  runPortal,
}

var fichiersCmd = &cobra.Command{
	Use:   "fichiers",
	Short: "Serve the files service",
	RunE:  runFichiers,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(portalCmd, fichiersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runPortal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := gateway.NewClient(cfg.Portal.FilesURLs,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout}),
		gateway.WithLogger(logger.Named("gateway")))
	if err != nil {
		return err
	}

	monitor := supervision.NewMonitor(client, logger.Named("supervision"))
	if err := monitor.Start(cfg.Portal.ProbeSchedule); err != nil {
		return fmt.Errorf("start supervision: %w", err)
	}
	defer monitor.Stop()

	p, err := pages.New(&pages.Options{
		ManifestPath:       cfg.Portal.ManifestPath,
		ForceSSL:           cfg.Portal.ForceSSL,
		EnableSessionStore: len(cfg.Portal.SessionKey) > 0,
		SessionKey:         []byte(cfg.Portal.SessionKey),
		Mounts: []pages.Mount{
			{Prefix: "/api/", Handler: gateway.NewHandler(client, logger.Named("api")).Handler()},
		},
		Logger: logger.Named("pages"),
	})
	if err != nil {
		return err
	}
	if err := p.Bind("fichiers", client.PageData, client.SubmitForm); err != nil {
		return err
	}
	if err := p.Bind("supervision", monitor.PageData, nil); err != nil {
		return err
	}

	router, err := p.BuildRouter()
	if err != nil {
		return err
	}
	return serve(ctx, cfg.Portal.Addr, router)
}

func runFichiers(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := fichiers.OpenIndex(cfg.Fichiers.DBPath)
	if err != nil {
		return err
	}
	defer index.Close()

	store, err := fichiers.NewStore(cfg.Fichiers.StorageDir, index, logger.Named("store"))
	if err != nil {
		return err
	}
	if cfg.Fichiers.Watch {
		go func() {
			if err := store.Watch(ctx); err != nil {
				logger.Error("storage watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := fichiers.NewServer(store, logger.Named("fichiers"), cfg.Fichiers.MaxUploadBytes)
	h := pages.RequestLogger(logger.Named("http"))(srv.Handler())
	return serve(ctx, cfg.Fichiers.Addr, h)
}

func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
