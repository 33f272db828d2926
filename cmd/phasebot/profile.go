package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"phasebot/internal/memory"
)

func openStore() (*memory.SQLiteStore, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewSQLiteStore(cfg.Store.DBPath, time.Duration(cfg.Store.CacheTTLSeconds)*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect stored user profiles",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show one profile with its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := store.GetProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no profile for %s", args[0])
			}
			if asJSON {
				data, _ := json.MarshalIndent(p, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Println(p.String())
			fmt.Printf("Updated: %s\n", p.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the profile as JSON")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			profiles, err := store.ListProfiles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("no profiles stored")
				return nil
			}
			for _, p := range profiles {
				fmt.Printf("%-20s %-10s %-20s %d notes  %s\n", p.ID, p.Platform, p.Username, len(p.Notes), p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum profiles to list")

	cmd.AddCommand(show, list)
	return cmd
}
