package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvcrypt/internal/core"
)

type transformOptions struct {
	in      string
	column  string
	key     string
	iv      string
	outDir  string
	workers int
}

func newTransformCmd(root *rootOptions, mode core.Mode) *cobra.Command {
	opts := &transformOptions{}

	cmd := &cobra.Command{
		Use:   string(mode) + " --in FILE",
		Short: fmt.Sprintf("%s the target column of a CSV file", titleCase(string(mode))),
		Long: fmt.Sprintf("Reads FILE, %ss every value of the target column and writes\n"+
			"%s next to it (or into --out). Rows that fail keep their\n"+
			"original values and get status \"error\" with a message.",
			mode, mode.FileName("FILE")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, root, opts, mode)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.in, "in", "", "input CSV file (required)")
	flags.StringVar(&opts.column, "column", "", "target column (default from TRANSFORM_DEFAULT_COLUMN)")
	flags.StringVar(&opts.key, "key", "", "cipher key, at least 16 bytes (default from CIPHER_DEFAULT_KEY)")
	flags.StringVar(&opts.iv, "iv", "", "cipher IV, at least 16 bytes (default from CIPHER_DEFAULT_IV)")
	flags.StringVar(&opts.outDir, "out", "", "output directory (default: the input file's directory)")
	flags.IntVar(&opts.workers, "workers", 0, "rows transformed concurrently (default from TRANSFORM_WORKERS)")
	cmd.MarkFlagRequired("in")

	return cmd
}

func runTransform(cmd *cobra.Command, root *rootOptions, opts *transformOptions, mode core.Mode) error {
	ctx := cmd.Context()
	tc := root.cfg.Transform

	params := tc.Params()
	if opts.key != "" {
		params.Key = opts.key
	}
	if opts.iv != "" {
		params.IV = opts.iv
	}
	column := opts.column
	if column == "" {
		column = tc.DefaultColumn
	}
	workers := opts.workers
	if workers <= 0 {
		workers = tc.Workers
	}
	outDir := opts.outDir
	if outDir == "" {
		outDir = filepath.Dir(opts.in)
	}

	f, err := os.Open(opts.in)
	if err != nil {
		return err
	}
	defer f.Close()

	svc := core.NewService(core.ServiceConfig{
		Workers: workers,
		Timeout: tc.Timeout,
	}, nil)

	run, err := svc.Process(ctx, core.ProcessRequest{
		FileName: filepath.Base(opts.in),
		Column:   column,
		Mode:     mode,
		Params:   params,
		Body:     f,
		Progress: progressLogger(),
	})
	if err != nil {
		return err
	}

	sink := &fileSink{dir: outDir}
	if err := svc.Download(ctx, run.ID, sink); err != nil {
		return err
	}

	stats := run.Result.Stats
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d succeeded, %d failed (%s%%)\n",
		mode, stats.Total, stats.Success, stats.Error, stats.SuccessRate)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", sink.path)
	return nil
}

// progressLogger logs run progress at debug level every 10 percent.
func progressLogger() core.ProgressCallback {
	last := -10
	return func(p core.RunProgress) {
		pct := p.Percent()
		if p.Phase == core.PhaseProcessing && pct/10 == last/10 {
			return
		}
		last = pct
		slog.Debug("progress",
			"phase", p.Phase,
			"row", p.CurrentRow,
			"total", p.TotalRows,
			"percent", pct,
		)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
