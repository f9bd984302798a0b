package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEntriesCmd(root *rootOptions) *cobra.Command {
	var entriesFile string

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Parse the configured entries and print the element keys they map to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if entriesFile != "" {
				cfg.EntriesFile = entriesFile
			}

			list, err := cfg.LoadEntries()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tID\tLABEL\tCLICK\tSELECT")
			for i, e := range list {
				fmt.Fprintf(w, "%d\t%s\t%q\t%s\t%s\n", i+1, e.ID, e.Label,
					e.ClickKey(cfg.ClickPrefix), e.SelectKey(cfg.SelectPrefix))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&entriesFile, "entries-file", "f", "", "Read entries from this file instead of the config")
	return cmd
}
