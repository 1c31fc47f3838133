package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/logger"
	"sticker-studio-server/modules/common/style"
)

const serviceName = "sticker-studio"

// newRootCmd - CLI 루트 커맨드 (serve, generate, seed, styles)
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sticker-studio",
		Short:         "Compose stickers from a background, a character and a style",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newSeedCmd(),
		newStylesCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("❌ Command failed")
		stop()
		os.Exit(1)
	}
}

// loadStyles - STYLE_CATALOG_PATH가 있으면 파일, 없으면 기본 카탈로그
func loadStyles(cfg *config.Config) (*style.Catalog, error) {
	if cfg.StyleCatalogPath == "" {
		return style.Default(), nil
	}
	catalog, err := style.LoadFile(cfg.StyleCatalogPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.StyleCatalogPath).Int("styles", catalog.Len()).Msg("🎨 Style catalog loaded")
	return catalog, nil
}

// healthCheck - 헬스체크
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}
