package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/geocoder89/tickethub/internal/config"
	"github.com/geocoder89/tickethub/internal/detect"
	"github.com/geocoder89/tickethub/internal/observability"
)

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Locate the {name} and {QR} markers on the tagged template and persist the layout",
		Long: `detect runs OCR over the tagged template, prints the resulting layout and, when
both markers were found, saves it to LAYOUT_STATE_PATH for later runs.

Exit status is non-zero when the markers conflict. A missing marker prints the
fallback layout that would be used instead.`,
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
			m := newLayoutManager(cfg, tmpl, log)

			l, err := m.Redetect(cmd.Context())

			var failure *detect.DetectionFailure
			switch {
			case err == nil:
			case errors.As(err, &failure):
				fmt.Fprintf(cmd.ErrOrStderr(), "detection fell back: %v\n", failure)
			default:
				return err
			}

			out := struct {
				Source string                  `yaml:"source"`
				Layout *config.PersistedLayout `yaml:"layout"`
				Saved  string                  `yaml:"saved_to,omitempty"`
			}{
				Source: l.Source.String(),
				Layout: config.Persist(l),
			}
			if err == nil {
				out.Saved = cfg.LayoutStatePath
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(out)
		},
	}
}
