package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/bookstore/internal/config"
	"github.com/vyrodovalexey/bookstore/internal/model"
	"github.com/vyrodovalexey/bookstore/internal/report"
	"github.com/vyrodovalexey/bookstore/internal/store"
)

// Report formats.
const (
	formatHTML = "html"
	formatXLSX = "xlsx"
)

var errUnknownFormat = errors.New("format must be html or xlsx")

func newReportCmd(root *rootOptions) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the catalog report from the data file",
		Long: `Report renders every book in the data file as an HTML table, or as an
XLSX workbook with --format xlsx. Output goes to stdout unless --output is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataFile, err := resolveDataFile(root, cmd)
			if err != nil {
				return err
			}

			if output == "" {
				return writeReport(cmd.Context(), dataFile, format, cmd.OutOrStdout(), time.Now)
			}
			return writeReportFile(cmd.Context(), dataFile, format, output, time.Now)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatHTML, "html or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("data-file", config.DefaultDataFile, "XML catalog document")

	return cmd
}

func writeReport(ctx context.Context, dataFile, format string, w io.Writer, now func() time.Time) error {
	var render func(*report.Generator, io.Writer, []model.Book) error
	switch format {
	case formatHTML:
		render = (*report.Generator).WriteHTML
	case formatXLSX:
		render = (*report.Generator).WriteXLSX
	default:
		return fmt.Errorf("%w, got %q", errUnknownFormat, format)
	}

	books, err := readCatalog(ctx, dataFile)
	if err != nil {
		return err
	}

	if err := render(report.NewGenerator(now), w, books); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

// writeReportFile renders into path. A failed close is reported, since the
// file may be incomplete.
func writeReportFile(ctx context.Context, dataFile, format, path string, now func() time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", cerr)
		}
	}()

	return writeReport(ctx, dataFile, format, f, now)
}

// resolveDataFile applies the config file, environment and --data-file flag.
func resolveDataFile(root *rootOptions, cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(
		config.WithConfigFile(root.configFile),
		config.WithFlag(config.EnvDataFile, cmd.Flags().Lookup("data-file")),
	)
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}
	return cfg.DataFile, nil
}

// readCatalog loads every book from an existing data file. Unlike serve it
// never creates the document.
func readCatalog(ctx context.Context, dataFile string) ([]model.Book, error) {
	if _, err := os.Stat(dataFile); err != nil {
		return nil, fmt.Errorf("data file: %w", err)
	}

	st, err := store.NewXMLStore(dataFile)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}

	books, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}
	return books, nil
}
