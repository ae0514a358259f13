package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/defs"
	"example.com/powerchunk/internal/numeric"
)

func newDefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defs",
		Short: "Inspect parameter definitions",
	}

	check := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a definitions file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			store, err := a.definitions(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d parameters\n", len(store.Names()))
			return nil
		},
	}

	var (
		showPath string
		showYAML bool
	)
	show := &cobra.Command{
		Use:   "show",
		Short: "List the definitions in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if showYAML {
				_, err := out.Write(defs.DefaultYAML())
				return err
			}
			store, err := a.definitions(showPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PARAMETER\tTYPE\tDETAIL\tDESCRIPTION")
			for _, name := range store.Names() {
				def, _ := store.Lookup(name)
				switch d := def.(type) {
				case defs.Numeric:
					fmt.Fprintf(tw, "%s\tnumeric\t%s–%s %s\t%s\n", name,
						numeric.FormatNumber(d.Range.Min), numeric.FormatNumber(d.Range.Max), d.Range.Unit, d.Description)
				case defs.Bitfield:
					fmt.Fprintf(tw, "%s\tbitfield\t%s (%d bits, %d codes)\t%s\n", name,
						d.Table.Name, len(d.Table.Bits), len(d.Table.ErrorCodes), d.Description)
				}
			}
			return tw.Flush()
		},
	}
	show.Flags().StringVar(&showPath, "defs", "", "Parameter definitions YAML (overrides config)")
	show.Flags().BoolVar(&showYAML, "yaml", false, "Print the built-in definitions as YAML")

	cmd.AddCommand(check, show)
	return cmd
}
