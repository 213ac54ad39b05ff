package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"SheetQueue/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sheetqueued",
		Short:         "Serve spreadsheet rows as a work queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or JSON config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, opts)
			},
		},
		newNextCommand(opts),
		newDoneCommand(opts),
		newStatsCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	return a.serve(cmd.Context())
}

func newNextCommand(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the next row that is not done",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			sel, err := a.service.Next(cmd.Context(), path)
			if err != nil {
				return err
			}
			if !sel.Found {
				return printJSON(cmd.OutOrStdout(), map[string]string{"message": "No rows left"})
			}
			return printJSON(cmd.OutOrStdout(), sel.Row)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "table location")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newDoneCommand(opts *rootOptions) *cobra.Command {
	var path, id string
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Mark the row with the given Id as done",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			comp, err := a.service.MarkDone(cmd.Context(), path, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"status":       "ok",
				"updated_id":   id,
				"already_done": comp.AlreadyDone,
			})
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "table location")
	cmd.Flags().StringVar(&id, "id", "", "row Id")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print done and pending row counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			stats, err := a.service.Stats(cmd.Context(), path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "table location")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
