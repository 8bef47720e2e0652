package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"jiaming2012/labor-export/config"
	"jiaming2012/labor-export/database"
	"jiaming2012/labor-export/logger"
	"jiaming2012/labor-export/pipeline"
	"jiaming2012/labor-export/report"
	"jiaming2012/labor-export/service/diff"
	"jiaming2012/labor-export/service/external"
	"jiaming2012/labor-export/sftp"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var cfg *config.Configuration

var rootCmd = &cobra.Command{
	Use:           "labor-export",
	Short:         "Incremental export of approved labor hours to the maintenance system",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}

		if err = logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}

		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := database.Setup(cfg.DatabaseURL); err != nil {
			log.Errorf("failed to connect to database: %v", err)
			return err
		}

		if err := runOnce(ctx, cfg); err != nil {
			log.Errorf("export failed: %v", err)
			return err
		}

		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the export on the configured interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := database.Setup(cfg.DatabaseURL); err != nil {
			log.Errorf("failed to connect to database: %v", err)
			return err
		}

		scheduler := gocron.NewScheduler(time.UTC)
		scheduler.SingletonModeAll()

		log.Infof("scheduling export of %s every %v", cfg.ExportTarget, cfg.ScheduleInterval)

		if _, err := scheduler.Every(cfg.ScheduleInterval).Do(func() {
			if err := runOnce(ctx, cfg); err != nil {
				log.Errorf("scheduled export failed: %v", err)
			}
		}); err != nil {
			return err
		}

		scheduler.StartAsync()
		<-ctx.Done()
		scheduler.Stop()

		log.Info("scheduler stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the export tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Setup(cfg.DatabaseURL); err != nil {
			return err
		}

		db := database.GetDB()
		defer database.ReleaseDB()

		if err := database.Migrate(db); err != nil {
			log.Errorf("migration failed: %v", err)
			return err
		}

		log.Info("migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd, scheduleCmd, migrateCmd)
}

func runOnce(ctx context.Context, cfg *config.Configuration) error {
	db := database.GetDB()
	defer database.ReleaseDB()

	runner, cleanup, err := newRunner(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := runner.Run(ctx)

	if cfg.SummaryPDFDir != "" && summary.BatchID != "" {
		if path, pdfErr := report.WritePDF(cfg.SummaryPDFDir, summary); pdfErr != nil {
			log.Warnf("failed to write run summary: %v", pdfErr)
		} else {
			log.Infof("run summary written to %s", path)
		}
	}

	return err
}

func newRunner(ctx context.Context, cfg *config.Configuration, db *gorm.DB) (*pipeline.Runner, func(), error) {
	reference, err := external.NewReferenceDataClient(ctx, cfg.ReferenceDataURL, cfg.ReferenceDataUser, cfg.ReferenceDataPassword, cfg.ReferenceDataTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to log in to reference data service: %w", err)
	}

	engine := diff.NewEngine(database.NewDiffer(db), cfg.EngineConfig())

	cleanup := func() {}
	var uploader pipeline.Uploader

	if cfg.SFTPEnabled() {
		var pk []byte
		if cfg.SFTPKeyPath != "" {
			if pk, err = os.ReadFile(cfg.SFTPKeyPath); err != nil {
				return nil, nil, fmt.Errorf("failed to read sftp key: %w", err)
			}
		}

		client, err := sftp.New(sftp.Config{
			Username:   cfg.SFTPUser,
			Password:   cfg.SFTPPassword,
			PrivateKey: string(pk),
			Server:     cfg.SFTPServer,
			KnownHosts: cfg.SFTPKnownHosts,
			Timeout:    cfg.SFTPTimeout,
			RemoteDir:  cfg.SFTPRemoteDir,
		})
		if err != nil {
			return nil, nil, err
		}

		uploader = client
		cleanup = client.Close
	}

	return pipeline.NewRunner(pipeline.NewConfig(cfg, time.Now()), engine, reference, uploader), cleanup, nil
}
