package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/geocoder89/tickethub/internal/config"
	"github.com/geocoder89/tickethub/internal/imagekit"
	"github.com/geocoder89/tickethub/internal/observability"
	"github.com/geocoder89/tickethub/internal/pipeline"
)

func renderCmd() *cobra.Command {
	var (
		name       string
		attendeeID string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one sample ticket to a local PNG without touching the sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := observability.NewLoggerTo(os.Stderr, cfg.Env, cfg.LogLevel)

			tmpl, err := loadTemplates(cfg)
			if err != nil {
				return err
			}
			layouts := newLayoutManager(cfg, tmpl, log)
			if err := resolveLayout(cmd.Context(), layouts, log); err != nil {
				return err
			}
			rd, err := newRenderDeps(cfg)
			if err != nil {
				return err
			}

			p := pipeline.New(pipeline.Config{
				Overflow: pipeline.OverflowPolicy(cfg.OverflowPolicy),
			}, pipeline.Deps{
				Links:    rd.links,
				QR:       imagekit.NewQREncoder(),
				Renderer: rd.renderer,
				Layouts:  layouts.Holder(),
				Template: tmpl.blank,
				Log:      log,
			})

			png, err := p.Preview(name, attendeeID)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(png))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "attendee name to draw on the ticket")
	cmd.Flags().StringVar(&attendeeID, "id", "", "attendee id for the {id} link placeholder")
	cmd.Flags().StringVarP(&out, "out", "o", "sample_ticket.png", "output file")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
