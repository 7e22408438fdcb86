package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/builder"
	"github.com/ipxe/people-mareo-ipxe/pkg/settings"
)

// defaultLocalConfig names the configuration that receives settings edits
// when --config is not given.
const defaultLocalConfig = "buildinfo"

func newBuildCmd(g *globals) *cobra.Command {
	var (
		req       builder.Request
		header    string
		sets      []string
		unsets    []string
		sourceDir string
	)

	cmd := &cobra.Command{
		Use:   "build <binary>",
		Short: "Build one firmware image, optionally at a given commit",
		Long: "Build one firmware image such as ipxe.usb. With --commit the build runs in a\n" +
			"per-commit checkout under build.dir; otherwise in the repository path.\n" +
			"Settings edits given with --header/--set/--unset are written as a local\n" +
			"configuration override and selected with CONFIG=.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			makeOpts, err := builder.SplitMakeOpts(cfg.Build.MakeOpts)
			if err != nil {
				return err
			}
			if req.Platform == "" {
				req.Platform = cfg.Build.Platform
			}
			if sourceDir == "" {
				sourceDir = cfg.Repository.Path
			}
			req.Binary = args[0]

			if len(sets) > 0 || len(unsets) > 0 {
				if header == "" {
					return fmt.Errorf("--set and --unset need --header")
				}
				doc, err := settings.Load(header)
				if err != nil {
					return err
				}
				if err := applyEdits(doc, sets, unsets); err != nil {
					return err
				}
				var override bytes.Buffer
				if err := doc.EmitOverride(&override); err != nil {
					return err
				}
				if req.Config == "" {
					req.Config = defaultLocalConfig
				}
				rel := filepath.ToSlash(filepath.Join("config", "local", req.Config, filepath.Base(header)))
				req.Files = map[string][]byte{rel: override.Bytes()}
				g.logger.Info("configuration override", "file", rel, "edits", doc.Pending())
			}

			out := g.buildOutput(cmd)
			d := &builder.Driver{
				BuildDir:  cfg.Build.Dir,
				SourceDir: sourceDir,
				MakeOpts:  makeOpts,
				Logger:    g.logger,
				Stdout:    out,
				Stderr:    out,
			}
			image, err := d.Build(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), image)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Commit, "commit", "", "build this commit in its own checkout")
	cmd.Flags().StringVarP(&req.Platform, "platform", "p", "", "target platform (default build.platform)")
	cmd.Flags().StringVar(&req.Embed, "embed", "", "script to embed (EMBED=)")
	cmd.Flags().StringVar(&req.Config, "config", "", "named configuration (CONFIG=)")
	cmd.Flags().StringVar(&header, "header", "", "configuration header to edit, e.g. config/general.h")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "define NAME or NAME=VALUE in --header (repeatable)")
	cmd.Flags().StringArrayVar(&unsets, "unset", nil, "undefine NAME in --header (repeatable)")
	cmd.Flags().StringVarP(&sourceDir, "source", "C", "", "source tree for builds without --commit (default repository.path)")
	return cmd
}
