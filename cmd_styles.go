package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sticker-studio-server/modules/common/config"
)

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the styles in the active catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			styles, err := loadStyles(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "KEY\tDESCRIPTOR")
			for _, e := range styles.Entries() {
				fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Descriptor)
			}
			return w.Flush()
		},
	}
}
