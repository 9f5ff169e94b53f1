package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mmdatafocus/catalogsync_backend/catalogsync"
	"github.com/mmdatafocus/catalogsync_backend/config"
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type rootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool
	Migrate    bool
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "catalogsyncctl",
		Short: "Reconcile a Unity Catalog with the local metadata repository",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "sync.toml", "path to the TOML sync config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log reconciliation steps")
	cmd.PersistentFlags().BoolVar(&opts.Migrate, "migrate", false, "run AutoMigrate before reconciling")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile and apply every action",
		Long: `Reconcile the configured catalog and apply the actions.

Example:
  catalogsyncctl run --config sync.toml
  catalogsyncctl run --config sync.toml --dry-run --format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify without applying")
	return cmd
}

func newPlanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "plan",
		Short:        "Show the actions a run would apply",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, true)
		},
	}
}

func runSync(cmd *cobra.Command, opts *rootOptions, dryRun bool) error {
	cfg, err := LoadSyncConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger := config.GetLogger()
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: os.Getenv("REDIS_PASSWORD")})
		if err := client.Ping(cmd.Context()).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddress, err)
		}
		config.UseRedis(client)
		defer func() {
			config.UseRedis(nil)
			_ = client.Close()
		}()
	} else {
		logger.WithField("connection_id", cfg.ConnectionID).Warn("no redis_address; running without the connection lock")
	}

	return catalogsync.WithConnectionLock(cmd.Context(), cfg.ConnectionID, func(ctx context.Context) error {
		return reconcileOnce(ctx, cmd.OutOrStdout(), cfg, opts, dryRun, logger)
	})
}

func reconcileOnce(ctx context.Context, out io.Writer, cfg SyncConfig, opts *rootOptions, dryRun bool, logger *logrus.Logger) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = config.DSNFromEnv()
	}
	db, err := config.OpenDatabase(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	config.UseDB(db)
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if opts.Migrate {
		if err := models.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	conn, err := loadConnection(db.WithContext(ctx), cfg)
	if err != nil {
		return err
	}

	report, runErr := catalogsync.Reconcile(ctx, db, conn, catalogsync.RunOptions{
		DryRun:   dryRun,
		Policy:   cfg.Policy,
		Settings: cfg.settings(),
		Logger:   logger,
	})
	if report != nil {
		if err := printReport(out, report, opts.Format); err != nil {
			return err
		}
	}
	return runErr
}

// loadConnection returns the stored connection with the file's values laid over
// it, creating the row when the id is new so correlations have an owner.
func loadConnection(db *gorm.DB, cfg SyncConfig) (*models.CatalogConnection, error) {
	var conn models.CatalogConnection
	err := db.Where("id = ?", cfg.ConnectionID).Take(&conn).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	policy, _ := reconcile.ParsePolicy(cfg.Policy)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conn = models.CatalogConnection{
			ID:             cfg.ConnectionID,
			Provider:       models.IntegrationProviderUnityCatalog,
			Owner:          "catalogsyncctl",
			Status:         models.IntegrationStatusConnected,
			ServerEndpoint: strings.TrimRight(cfg.Endpoint, "/"),
			CatalogName:    cfg.Catalog,
			AuthToken:      cfg.Token,
			Policy:         policy.String(),
			SettingsJSON:   catalogsync.EncodeSettings(cfg.settings()),
		}
		if err := db.Create(&conn).Error; err != nil {
			return nil, err
		}
		return &conn, nil
	}
	conn.ServerEndpoint = strings.TrimRight(cfg.Endpoint, "/")
	conn.CatalogName = cfg.Catalog
	conn.AuthToken = cfg.Token
	conn.Policy = policy.String()
	return &conn, nil
}

func printReport(w io.Writer, report *reconcile.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	mode := "apply"
	if report.DryRun {
		mode = "plan"
	}
	fmt.Fprintf(w, "policy: %s  mode: %s\n", report.Policy.String(), mode)
	for _, item := range report.Items {
		line := fmt.Sprintf("  %-16s %-7s %s", item.Action, item.Kind, item.FullName)
		if item.Reason != "" {
			line += "  (" + item.Reason + ")"
		}
		if item.Mismatch {
			line += "  [identity mismatch]"
		}
		if item.Error != "" {
			line += "  error: " + item.Error
		}
		fmt.Fprintln(w, line)
	}

	actions := make([]string, 0, len(report.Counts))
	for action := range report.Counts {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)
	parts := make([]string, 0, len(actions))
	for _, action := range actions {
		parts = append(parts, fmt.Sprintf("%s=%d", action, report.Counts[reconcile.Action(action)]))
	}
	fmt.Fprintf(w, "changes: %d  mismatches: %d  failures: %d  counts: %s\n",
		report.Changes(), report.Mismatches, report.Failures, strings.Join(parts, " "))
	return nil
}
