package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/bitfield"
	"example.com/powerchunk/internal/defs"
)

func newDecodeCmd(a *app) *cobra.Command {
	var (
		param    string
		table    string
		defsPath string
	)
	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode status register values",
		Example: `  powerchunk decode --param BattStatus 0080 8000
  powerchunk decode --table SafetyStatus 0x0400`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.definitions(defsPath)
			if err != nil {
				return err
			}
			t, err := decodeTable(store, param, table)
			if err != nil {
				return err
			}
			for _, line := range bitfield.Decode(strings.Join(args, " "), t) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&param, "param", "", "Bitfield parameter whose table is used")
	cmd.Flags().StringVar(&table, "table", "", "Bitfield table name")
	cmd.Flags().StringVar(&defsPath, "defs", "", "Parameter definitions YAML (overrides config)")
	cmd.MarkFlagsMutuallyExclusive("param", "table")
	cmd.MarkFlagsOneRequired("param", "table")
	return cmd
}

func decodeTable(store *defs.Store, param, table string) (*bitfield.Table, error) {
	if table != "" {
		t, ok := store.Table(table)
		if !ok {
			return nil, fmt.Errorf("%w: %s", defs.ErrUnknownTable, table)
		}
		return t, nil
	}
	def, ok := store.Lookup(param)
	if !ok {
		return nil, fmt.Errorf("parameter %s is not defined", param)
	}
	bf, ok := def.(defs.Bitfield)
	if !ok {
		return nil, errors.New("parameter " + param + " is not a bitfield")
	}
	return bf.Table, nil
}
