package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"phasebot/internal/channel"
	"phasebot/internal/lexicon"
)

func lexiconCmd() *cobra.Command {
	var bundlePath string
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Inspect and edit the term lexicon",
	}
	cmd.PersistentFlags().StringVar(&bundlePath, "bundle", "", "lexicon bundle file or directory (default: lexicon.bundlePath)")

	resolve := func() (string, error) {
		if bundlePath != "" {
			return bundlePath, nil
		}
		cfg, err := loadConfig(true)
		if err != nil {
			return "", err
		}
		return cfg.Lexicon.BundlePath, nil
	}

	var list bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the lexicon bundle and print its size",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			lex, err := lexicon.Load(path, logger)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d terms, %d aliases\n", path, lex.Len(), len(lex.Aliases()))
			if !list {
				return nil
			}
			for _, term := range lex.Terms() {
				e, _ := lex.Entry(term)
				for i, meaning := range e.Senses {
					fmt.Printf("  %s.%d  %s\n", term, i+1, meaning)
				}
				if len(e.References) > 0 {
					fmt.Printf("  %s -> %s\n", term, strings.Join(e.References, ", "))
				}
			}
			for _, alias := range lex.Aliases() {
				fmt.Printf("  %s = %s\n", alias, strings.Join(lex.AliasTerms(alias), " | "))
			}
			return nil
		},
	}
	check.Flags().BoolVar(&list, "list", false, "print every term, reference and alias")

	var (
		interactive bool
		asJSON      bool
	)
	enrich := &cobra.Command{
		Use:   "enrich [text]",
		Short: "Annotate text with lexicon meanings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			lex, err := lexicon.Load(path, logger)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			d := channel.NewTerminalDisambiguator(os.Stdin, os.Stdout)
			anns, err := lex.Annotate(cmd.Context(), text, interactive, d)
			if err != nil {
				return err
			}
			if asJSON {
				if anns == nil {
					anns = []lexicon.Annotation{}
				}
				data, _ := json.MarshalIndent(anns, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Println(lexicon.Render(text, anns))
			return nil
		},
	}
	enrich.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask which sense is meant when a term is ambiguous")
	enrich.Flags().BoolVar(&asJSON, "json", false, "print the annotations as JSON")

	var (
		refs  []string
		alias bool
	)
	add := &cobra.Command{
		Use:   "add [term] [meaning]",
		Short: "Add a term sense (or an alias with --alias) and save the bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return fmt.Errorf("%s is a directory; add terms to one of its bundle files", path)
			}
			lex, err := lexicon.Load(path, logger)
			if err != nil {
				return err
			}
			if alias {
				if _, ok := lex.Entry(args[1]); !ok {
					return fmt.Errorf("alias %q: unknown term %q", args[0], args[1])
				}
				lex.AddAlias(args[0], args[1])
			} else {
				lex.AddTerm(args[0], args[1], refs...)
			}
			if err := lexicon.Save(path, lex); err != nil {
				return err
			}
			logger.Info("lexicon updated", "path", path, "key", args[0], "terms", lex.Len())
			return nil
		},
	}
	add.Flags().StringSliceVar(&refs, "ref", nil, "terms this term refers to")
	add.Flags().BoolVar(&alias, "alias", false, "add [term] as an alias of the term named by the second argument")

	cmd.AddCommand(check, enrich, add)
	return cmd
}
