package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/gesture/internal/adapters/http/auth"
	"github.com/okian/gesture/internal/adapters/repository"
	"github.com/okian/gesture/internal/domain/model"
)

func seedCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty database from the seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if file == "" {
				file = c.cfg.SeedFile
			}
			store, err := repository.Open(ctx, c.cfg.DB.Driver, c.cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.SeedIfEmpty(ctx, file)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database already has models; nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d models from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed file (defaults to seed_file from config)")
	return cmd
}

func modelsCmd(c *cli) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List stored models with their statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := repository.Open(ctx, c.cfg.DB.Driver, c.cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.ListModelsWithStats(ctx)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), all, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printModels(w io.Writer, all []model.ModelWithStats, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tARTIFACT\tTRANSFORMS\tTOTAL\tWRONG")
	for _, m := range all {
		names := make([]string, len(m.TransformIDs))
		for i, id := range m.TransformIDs {
			names[i] = id.Name()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			m.ID, m.Name, m.ArtifactPath, strings.Join(names, ","),
			m.Statistics.TotalPredictions, m.Statistics.WrongPredictions)
	}
	return tw.Flush()
}

func tokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Auth.SecretKey == "" {
				return errors.New("auth.secret_key is not set")
			}
			tok, err := auth.NewJWTGate(c.cfg.Auth.SecretKey, c.cfg.Auth.Issuer).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
