package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/powerchunk/internal/manifest"
)

func newManifestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Build or verify artifact manifests",
	}

	var (
		base string
		out  string
	)
	build := &cobra.Command{
		Use:   "build <file>...",
		Short: "Hash files into a manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if base == "" {
				base = filepath.Dir(out)
			}
			m, err := manifest.Build(base, args)
			if err != nil {
				return fmt.Errorf("manifest build: %w", err)
			}
			if err := manifest.Save(m, out); err != nil {
				return fmt.Errorf("manifest save: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", out)
			return nil
		},
	}
	build.Flags().StringVar(&base, "base", "", "Directory paths are recorded relative to (default: manifest directory)")
	build.Flags().StringVar(&out, "out", "manifest.json", "Output manifest")

	var (
		path       string
		verifyBase string
	)
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check every artifact of a manifest against its digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(path)
			if err != nil {
				return fmt.Errorf("manifest load: %w", err)
			}
			if verifyBase == "" {
				verifyBase = filepath.Dir(path)
			}
			if err := manifest.Verify(verifyBase, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d artifacts\n", len(m.Items))
			return nil
		},
	}
	verify.Flags().StringVar(&path, "manifest", "", "Manifest JSON")
	verify.Flags().StringVar(&verifyBase, "base", "", "Directory relative paths resolve against (default: manifest directory)")
	verify.MarkFlagRequired("manifest")

	cmd.AddCommand(build, verify)
	return cmd
}
