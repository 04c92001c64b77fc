package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/gdelt-news-cache/internal/table"
)

func newExportCommand(a *app) *cobra.Command {
	var hash, station, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a stored clip dataset to a parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hash == "" || station == "" {
				return errors.New("--hash and --station are required")
			}
			t, err := a.backend.LoadDataset(cmd.Context(), hash, strings.ToLower(station))
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return table.WriteParquet(cmd.OutOrStdout(), t)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := table.WriteParquet(f, t); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", t.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "search hash, as printed by list")
	cmd.Flags().StringVar(&station, "station", "", "station whose clips to export")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout when empty or -")
	return cmd
}
