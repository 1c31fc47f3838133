package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sticker-studio-server/modules/auth"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/utils"
	"sticker-studio-server/modules/composer"
	"sticker-studio-server/modules/gallery"
	"sticker-studio-server/modules/notify"
	"sticker-studio-server/web"
)

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	healthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"generate", "seed", "serve", "styles"}, names); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestStylesCommand(t *testing.T) {
	t.Setenv("STYLE_CATALOG_PATH", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"styles"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.True(t, strings.HasPrefix(lines[1], "ghibli "))
	assert.Contains(t, out.String(), "Lego Style")
}

func TestStylesCommandCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("styles:\n  - key: noir\n    descriptor: black and white film noir\n"), 0o644))
	t.Setenv("STYLE_CATALOG_PATH", path)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"styles"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "black and white film noir")
	assert.NotContains(t, out.String(), "ghibli")
}

func TestGenerateRejectsUnknownStyle(t *testing.T) {
	t.Setenv("STYLE_CATALOG_PATH", "")

	root := newRootCmd()
	root.SetArgs([]string{"generate", "--background", "bg.png", "--character", "ch.png", "--style", "vaporwave"})
	err := root.Execute()
	assert.ErrorIs(t, err, composer.ErrUnknownStyle)
}

type recordingUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *recordingUploader) Upload(ctx context.Context, req gallery.UploadRequest) (*model.Image, error) {
	if req.OwnerID != nil {
		panic("seeded images must be shared")
	}
	if !bytes.HasPrefix(req.Data, []byte("\x89PNG")) {
		return nil, utils.ErrNotImage
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, req.Kind+"/"+req.FileName)
	return &model.Image{ImageID: "id-" + req.FileName, Kind: req.Kind}, nil
}

func TestSeedDir(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\nbody")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forest.png"), png, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beach.png"), png, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not an image"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	up := &recordingUploader{}
	n, err := seedDir(context.Background(), up, dir, model.KindBackground)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sort.Strings(up.names)
	assert.Equal(t, []string{"background/beach.png", "background/forest.png"}, up.names)
}

func TestSeedDirMissing(t *testing.T) {
	_, err := seedDir(context.Background(), &recordingUploader{}, filepath.Join(t.TempDir(), "nope"), model.KindCharacter)
	assert.Error(t, err)
}

func testRouter(t *testing.T) *mux.Router {
	t.Helper()
	pages, err := web.NewRenderer()
	require.NoError(t, err)

	library := gallery.NewService(nil, nil)
	return newRouter(routes{
		auth:     auth.NewHandler(nil, nil, pages, false),
		composer: composer.NewHandler(composer.NewService(composer.Deps{}), library, pages),
		gallery:  gallery.NewHandler(library, pages),
		hub:      notify.NewHub(),
	})
}

func TestRouterGuardsPrivateRoutes(t *testing.T) {
	router := testRouter(t)

	tests := []struct {
		target   string
		status   int
		location string
	}{
		{"/health", http.StatusOK, ""},
		{"/login", http.StatusOK, ""},
		{"/", http.StatusSeeOther, "/login?next=%2F"},
		{"/generations", http.StatusSeeOther, "/login?next=%2Fgenerations"},
		{"/api/generations/g1", http.StatusUnauthorized, ""},
		{"/ws", http.StatusUnauthorized, ""},
		{"/metrics", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestRouterLogsRecoveredPanics(t *testing.T) {
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	router := testRouter(t)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var logged bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(line, &entry) != nil {
			continue
		}
		if entry["path"] == "/boom" && entry["status"] == float64(http.StatusInternalServerError) {
			logged = true
		}
	}
	assert.True(t, logged, "access log line for the recovered request")
}
