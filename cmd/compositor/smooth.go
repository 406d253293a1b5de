package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/stac-composite/internal/composite"
)

func NewSmoothCommand(global *globalOptions) *cobra.Command {
	var output string

	command := &cobra.Command{
		Use:   "smooth",
		Short: "Replace every record with the mean of its moving window",
		Long: `Loads the records, computes one composite per record and writes the
composites as a records JSON document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := global.logger(cmd)

			svc, collectionID, err := global.loadService(logger)
			if err != nil {
				return err
			}
			params, err := global.fetchParams(collectionID)
			if err != nil {
				return err
			}
			compositor, window, err := global.compositor(logger)
			if err != nil {
				return err
			}

			coll, err := svc.Fetch(cmd.Context(), params)
			if err != nil {
				return err
			}
			composites, err := compositor.MovingAverage(cmd.Context(), coll, window)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return writeRecords(cmd.OutOrStdout(), composites)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := writeRecords(f, composites); err != nil {
				closeQuietly(f)
				return err
			}
			return f.Close()
		},
	}
	command.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	return command
}

func writeRecords(w io.Writer, coll *composite.Collection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(coll)
}
