package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/bookstore/internal/config"
	"github.com/vyrodovalexey/bookstore/internal/validation"
)

var errInvalidCatalog = errors.New("catalog has invalid records")

func newCheckCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate every record in the data file",
		Long: `Check parses the data file and runs the catalog validation rules on every
record. It prints each violation and exits non-zero when the file cannot be
parsed or any record is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataFile, err := resolveDataFile(root, cmd)
			if err != nil {
				return err
			}
			return checkCatalog(cmd.Context(), dataFile, cmd.OutOrStdout(), time.Now)
		},
	}

	cmd.Flags().String("data-file", config.DefaultDataFile, "XML catalog document")

	return cmd
}

func checkCatalog(ctx context.Context, dataFile string, w io.Writer, now func() time.Time) error {
	books, err := readCatalog(ctx, dataFile)
	if err != nil {
		return err
	}

	rules := validation.NewBookRules(now)
	seen := make(map[string]int, len(books))
	invalid := 0

	for i, book := range books {
		label := fmt.Sprintf("record %d (isbn %q)", i+1, book.ISBN)

		problems := rules.Validate(book)
		key := strings.ToUpper(book.ISBN)
		if first, dup := seen[key]; dup && key != "" {
			problems = append(problems, fmt.Sprintf("duplicate ISBN, first seen in record %d", first))
		} else {
			seen[key] = i + 1
		}

		if len(problems) == 0 {
			continue
		}
		invalid++
		for _, p := range problems {
			fmt.Fprintf(w, "%s: %s\n", label, p)
		}
	}

	fmt.Fprintf(w, "%d record(s) checked, %d invalid\n", len(books), invalid)
	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalidCatalog, invalid, len(books))
	}
	return nil
}
