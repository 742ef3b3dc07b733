package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-xattrfs/internal/config"
	xattrs "github.com/deploymenttheory/go-xattrfs/internal/services"
	"github.com/deploymenttheory/go-xattrfs/internal/stats"
	"github.com/deploymenttheory/go-xattrfs/internal/store"
	"github.com/deploymenttheory/go-xattrfs/pkg/services"
)

var (
	// Global flags
	configDir    string
	admin        bool
	verbose      bool
	showMetrics  bool
	outputFormat string

	cfg     *config.Config
	logger  *zap.Logger
	factory *services.ServiceFactory
	// set once the services of the current execution have been shut down
	shutDown bool
)

var rootCmd = &cobra.Command{
	Use:   "xattrfs",
	Short: "Extended attribute store with search and total indexes",
	Long: `xattrfs stores extended attributes of numbered inodes in an ordered item
store. Attribute names in the scoutfs. namespace can carry tags:

  hide.   omit the attribute from ordinary listing
  srch.   register the attribute in the search index
  totl.   add the attribute's numeric value to a global total
  worm.   refuse changes to the file until the value's expiration

Tagged attributes need --admin.

The default memory backend keeps nothing between runs: every invocation
starts from an empty store. Use --backend leveldb --store-dir <dir> (or
store.backend and store.dir in the config file) to keep attributes.`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New()
		if configDir != "" {
			v = config.New(configDir)
		}
		if err := v.BindPFlag("store.backend", cmd.Flags().Lookup("backend")); err != nil {
			return err
		}
		if err := v.BindPFlag("store.dir", cmd.Flags().Lookup("store-dir")); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = config.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		if cfg.Store.Backend == store.BackendMemory {
			logger.Sugar().Debugw("memory store does not persist between runs")
		}

		factory = services.NewServiceFactory(cfg, logger)
		shutDown = false
		if err := factory.Initialize(); err != nil {
			return err
		}

		if admin {
			cmd.SetContext(xattrs.WithAdmin(cmd.Context()))
		}
		return nil
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if err := shutdownServices(cmd.Context()); err != nil {
			return err
		}
		if showMetrics && cfg.Metrics.Enabled {
			return stats.WriteCounters(cmd.ErrOrStderr())
		}
		return nil
	},
}

// Execute runs the command line and exits with a failure status when the
// command fails.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		errno := xattrs.Errno(err)
		fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, unix.ErrnoName(errno))
		if err := shutdownServices(context.Background()); err != nil {
			logger.Sugar().Errorw("shutdown after failed command", "error", err)
		}
		os.Exit(1)
	}
}

// shutdownServices shuts the factory down once per execution. Later calls
// return nil.
func shutdownServices(ctx context.Context) error {
	if factory == nil || shutDown {
		return nil
	}
	shutDown = true
	if err := factory.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down services: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding xattrfs-config.yaml")
	rootCmd.PersistentFlags().BoolVar(&admin, "admin", false, "allow tagged scoutfs. attribute names")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print operation counters when the command finishes")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().String("backend", "", "item store backend (memory, leveldb)")
	rootCmd.PersistentFlags().String("store-dir", "", "leveldb store directory")
}

func parseIno(s string) (uint64, error) {
	ino, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("inode number %q: %w", s, err)
	}
	return ino, nil
}
