package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"phasebot/internal/config"
	"phasebot/internal/lexicon"
	"phasebot/internal/memory"
	"phasebot/internal/provider"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	logLevel   = new(slog.LevelVar)
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	loadDotEnv()

	root := &cobra.Command{
		Use:   "phasebot",
		Short: "phasebot: a four-phase conversational agent pipeline",
		Long: `phasebot decides whether to answer a chat message and drives each answer
through context gathering, enrichment, processing and validation.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.phasebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(lexiconCmd())
	root.AddCommand(profileCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads .env from the config directory, then the working
// directory. Variables already set in the environment win.
func loadDotEnv() {
	for _, path := range []string{filepath.Join(config.DefaultConfigDir(), ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("cannot load env file", "path", path, "err", err)
		}
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and applies its log level. A missing
// file falls back to defaults when allowDefaults is set.
func loadConfig(allowDefaults bool) (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !allowDefaults {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
		cfg.Store.DBPath = config.ExpandPath(cfg.Store.DBPath)
		cfg.Lexicon.BundlePath = config.ExpandPath(cfg.Lexicon.BundlePath)
	}
	if lvl, err := config.ParseLogLevel(cfg.General.LogLevel); err == nil {
		logLevel.Set(lvl)
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and an example lexicon bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}

			bundlePath := config.ExpandPath(cfg.Lexicon.BundlePath)
			if _, err := os.Stat(bundlePath); os.IsNotExist(err) {
				lex := lexicon.New()
				lex.AddTerm("phasebot", "the assistant answering in this conversation")
				if err := lexicon.Save(bundlePath, lex); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "data_dir", dataDir, "lexicon", bundlePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("phasebot", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. models.textModel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. notes.maxAttempts 3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg, _ = loadConfig(true)
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			ctx := cmd.Context()
			factory := provider.NewFactory(cfg, logger)
			prov := factory.HealthyProvider(ctx)
			if prov != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			} else {
				logger.Info("provider", "healthy", false)
			}

			if _, err := os.Stat(cfg.Store.DBPath); err == nil {
				store, err := memory.NewSQLiteStore(cfg.Store.DBPath, time.Minute, logger)
				if err != nil {
					logger.Info("store", "path", cfg.Store.DBPath, "open", false, "err", err)
				} else {
					defer store.Close()
					profiles, _ := store.ListProfiles(ctx, 1000)
					descs, _ := store.CountDescriptions(ctx)
					logger.Info("store", "path", cfg.Store.DBPath, "profiles", len(profiles), "descriptions", descs)
				}
			} else {
				logger.Info("store", "path", cfg.Store.DBPath, "exists", false)
			}

			if lex, err := lexicon.Load(cfg.Lexicon.BundlePath, logger); err == nil {
				logger.Info("lexicon", "path", cfg.Lexicon.BundlePath, "terms", lex.Len(), "aliases", len(lex.Aliases()))
			} else {
				logger.Info("lexicon", "path", cfg.Lexicon.BundlePath, "err", err)
			}
			return nil
		},
	}
}
