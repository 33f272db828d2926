package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"phasebot/internal/config"
	"phasebot/internal/lexicon"
	"phasebot/internal/memory"
	"phasebot/internal/provider"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your phasebot installation",
		Long: `Verifies that phasebot's configuration, providers, store, lexicon and
attachment tooling are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("phasebot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'phasebot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				store, err := memory.NewSQLiteStore(cfg.Store.DBPath, time.Minute, logger)
				if err != nil {
					printFail("Database", fmt.Sprintf("migrations: %v", err))
					failed++
				} else {
					n, _ := store.CountDescriptions(cmd.Context())
					printPass("Database", fmt.Sprintf("%s (%d cached descriptions)", cfg.Store.DBPath, n))
					passed++
					store.Close()
				}
			}

			factory := provider.NewFactory(cfg, logger)
			providerCount := 0
			for name, p := range cfg.Providers {
				if !p.Enabled {
					continue
				}
				providerCount++
				prov, err := factory.Get(name)
				if err != nil {
					printFail("Provider: "+name, err.Error())
					failed++
					continue
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				err = prov.Healthy(ctx)
				cancel()
				if err != nil {
					printWarn("Provider: "+name, fmt.Sprintf("configured but unreachable: %v", err))
					warned++
				} else {
					printPass("Provider: "+name, "healthy")
					passed++
				}
			}
			if providerCount == 0 {
				printFail("Providers", "no providers enabled")
				failed++
			}
			if _, ok := cfg.Providers[cfg.Models.Provider]; !ok {
				printFail("Text provider", fmt.Sprintf("%q is not configured", cfg.Models.Provider))
				failed++
			}

			if _, err := os.Stat(cfg.Lexicon.BundlePath); os.IsNotExist(err) {
				printWarn("Lexicon", fmt.Sprintf("no bundle at %s (enrichment adds no annotations)", cfg.Lexicon.BundlePath))
				warned++
			} else if lex, err := lexicon.Load(cfg.Lexicon.BundlePath, logger); err != nil {
				printFail("Lexicon", err.Error())
				failed++
			} else {
				printPass("Lexicon", fmt.Sprintf("%d terms, %d aliases", len(lex.Terms()), len(lex.Aliases())))
				passed++
			}

			if cfg.Attachments.OCR.Enabled {
				if len(cfg.Attachments.OCR.Command) == 0 {
					printFail("OCR", "enabled but no command configured")
					failed++
				} else if path, err := exec.LookPath(cfg.Attachments.OCR.Command[0]); err != nil {
					printWarn("OCR", fmt.Sprintf("%s not found on PATH", cfg.Attachments.OCR.Command[0]))
					warned++
				} else {
					printPass("OCR", path)
					passed++
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running phasebot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nphasebot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! phasebot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
