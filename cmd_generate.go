package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/gemini"
	"sticker-studio-server/modules/composer"
)

type generateOptions struct {
	background string
	character  string
	subject    string
	style      string
	out        string
}

// newGenerateCmd - 로컬 파일로 한 번 합성 (서버/DB 없이)
func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compose one sticker from local image files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.background, "background", "", "Background image file")
	cmd.Flags().StringVar(&opts.character, "character", "", "Character image file")
	cmd.Flags().StringVar(&opts.subject, "subject", "Sci-Fi", "Theme of the sticker")
	cmd.Flags().StringVar(&opts.style, "style", "ghibli", "Style key from the catalog")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "out.png", "Where to write the generated image")
	cmd.MarkFlagRequired("background")
	cmd.MarkFlagRequired("character")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	styles, err := loadStyles(cfg)
	if err != nil {
		return err
	}
	if _, ok := styles.Lookup(opts.style); !ok {
		return fmt.Errorf("%w: %q (known: %v)", composer.ErrUnknownStyle, opts.style, styles.Keys())
	}

	if err := cfg.ValidateGemini(); err != nil {
		return err
	}

	background, err := os.ReadFile(opts.background)
	if err != nil {
		return fmt.Errorf("read background: %w", err)
	}
	character, err := os.ReadFile(opts.character)
	if err != nil {
		return fmt.Errorf("read character: %w", err)
	}

	client, err := gemini.NewClient(cmd.Context(), geminiOptions(cfg))
	if err != nil {
		return err
	}

	log.Info().Str("subject", opts.subject).Str("style", opts.style).Msg("🎨 Generating sticker")

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GenerationTimeout)
	defer cancel()

	img, err := composer.NewAdapter(client, styles).Generate(ctx, composer.GenerationRequest{
		Background: background,
		Character:  character,
		Subject:    opts.subject,
		Style:      opts.style,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.out, img.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	log.Info().Str("out", opts.out).Str("mime_type", img.MIMEType).Int("bytes", len(img.Data)).Msg("✅ Sticker saved")
	fmt.Fprintln(cmd.OutOrStdout(), opts.out)
	return nil
}
