// Package cmd wires the testledger CLI: configuration loading, database
// bootstrap and the subcommands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"testledger/internal/config"
	"testledger/internal/docstore"
	"testledger/internal/log"
	"testledger/internal/model"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "testledger",
	Short: "Track test catalogs, cases and plan verdicts",
	Long: `testledger keeps a hierarchy of test catalogs and test cases in a
local sqlite database, snapshots them into test plans and records a full
history of verdicts and field changes.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.testledger/config.yaml)")
	rootCmd.PersistentFlags().String("db", "",
		"path to the sqlite database")
	rootCmd.PersistentFlags().Bool("debug", false,
		"write a debug log next to the database")

	_ = viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("database_path", defaults.DatabasePath)
	viper.SetDefault("default_days", defaults.DefaultDays)
	viper.SetDefault("sort_by", defaults.SortBy)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .testledger/config.yaml (current directory)
		// 2. ~/.testledger/config.yaml (user config)
		if _, err := os.Stat(".testledger/config.yaml"); err == nil {
			viper.SetConfigFile(".testledger/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".testledger"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - write a starter one
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			home, homeErr := os.UserHomeDir()
			if homeErr == nil {
				defaultPath := filepath.Join(home, ".testledger", "config.yaml")
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// openManager validates the configuration, opens the database and builds
// the model manager. The returned cleanup closes everything.
func openManager() (*model.Manager, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog := func() {}
	if viper.GetBool("debug") || os.Getenv("TESTLEDGER_DEBUG") != "" {
		logPath := cfg.LogPath
		if logPath == "" {
			logPath = filepath.Join(filepath.Dir(cfg.DatabasePath), "debug.log")
		}
		if c, err := log.Init(logPath); err == nil {
			closeLog = c
		}
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	registry, err := schema.NewRegistry(model.RealmDecls(), cfg.CustomFields)
	if err != nil {
		_ = db.Close()
		closeLog()
		return nil, nil, fmt.Errorf("building schema: %w", err)
	}
	outcomes, err := model.NewOutcomes(cfg.GetOutcomes())
	if err != nil {
		_ = db.Close()
		closeLog()
		return nil, nil, fmt.Errorf("loading outcomes: %w", err)
	}

	m := model.NewManager(db, registry, docstore.NewStore(db), outcomes)
	cleanup := func() {
		m.Close()
		_ = db.Close()
		closeLog()
	}
	return m, cleanup, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
