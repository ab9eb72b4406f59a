package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRoutesCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			table, err := routeTableFrom(cfg.Routes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				return writeJSON(out, table.Entries())
			case "text":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "PATH\tTARGET")
				for _, e := range table.Entries() {
					_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Path, e.Target)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unsupported output format %q (want text or json)", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json")
	return cmd
}
