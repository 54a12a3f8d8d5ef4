package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcrypt/internal/core"
	"github.com/JonMunkholm/csvcrypt/internal/tabular"
)

type previewOptions struct {
	in     string
	column string
	rows   int
}

func newPreviewCmd(root *rootOptions) *cobra.Command {
	opts := &previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview --in FILE",
		Short: "Show the header and first rows of a CSV file",
		Long:  "Prints the first rows of FILE and warns if the target column is missing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.in, "in", "", "input CSV file (required)")
	flags.StringVar(&opts.column, "column", "", "target column (default from TRANSFORM_DEFAULT_COLUMN)")
	flags.IntVar(&opts.rows, "rows", tabular.DefaultPreviewRows, "number of data rows to show")
	cmd.MarkFlagRequired("in")

	return cmd
}

func runPreview(cmd *cobra.Command, root *rootOptions, opts *previewOptions) error {
	if opts.rows < 1 {
		return fmt.Errorf("--rows must be at least 1, got %d", opts.rows)
	}

	column := opts.column
	if column == "" {
		column = root.cfg.Transform.DefaultColumn
	}

	f, err := os.Open(opts.in)
	if err != nil {
		return err
	}
	defer f.Close()

	svc := core.NewService(core.ServiceConfig{PreviewRows: opts.rows}, nil)
	preview, err := svc.Preview(cmd.Context(), f, column)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(preview.Columns, "\t"))
	for _, row := range preview.Rows {
		cells := make([]string, len(preview.Columns))
		for i, col := range preview.Columns {
			cells[i] = row[col]
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if preview.Truncated {
		fmt.Fprintf(out, "(first %d rows)\n", len(preview.Rows))
	}
	if preview.Warning != "" {
		fmt.Fprintf(out, "warning: %s\n", preview.Warning)
	}
	return nil
}
