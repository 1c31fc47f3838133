package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/storage"
	"sticker-studio-server/modules/common/utils"
	"sticker-studio-server/modules/gallery"
)

const seedParallelism = 4

type imageUploader interface {
	Upload(ctx context.Context, req gallery.UploadRequest) (*model.Image, error)
}

// newSeedCmd - 디렉터리의 이미지를 공용 라이브러리로 업로드
func newSeedCmd() *cobra.Command {
	var dir, kind string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upload every image in a directory as a shared library image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidUploadKind(kind) {
				return fmt.Errorf("%w: %q", gallery.ErrInvalidKind, kind)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSupabase(); err != nil {
				return err
			}
			db, err := database.NewClient(cfg)
			if err != nil {
				return err
			}

			n, err := seedDir(cmd.Context(), gallery.NewService(db, storage.NewClient(cfg)), dir, kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d %s image(s) from %s\n", n, kind, dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of images to upload")
	cmd.Flags().StringVar(&kind, "kind", model.KindBackground, "Image kind: background or character")
	cmd.MarkFlagRequired("dir")

	return cmd
}

// seedDir uploads the regular files of dir as shared images of kind. Files
// that are not images are skipped; any other failure stops the run.
func seedDir(ctx context.Context, uploader imageUploader, dir, kind string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedParallelism)

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			img, err := uploader.Upload(gctx, gallery.UploadRequest{
				Kind:     kind,
				FileName: entry.Name(),
				Data:     data,
			})
			if errors.Is(err, utils.ErrNotImage) || errors.Is(err, gallery.ErrTooLarge) {
				log.Warn().Err(err).Str("file", path).Msg("⚠️  Skipping file")
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			uploaded.Add(1)
			log.Info().Str("file", path).Str("image_id", img.ImageID).Msg("📤 Seeded image")
			return nil
		})
	}

	err = g.Wait()
	return int(uploaded.Load()), err
}
