package gallery

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/auth"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/utils"
	"sticker-studio-server/web"
)

// multipart 헤더 여유분
const formOverhead = 1 << 20

// Renderer draws a named page.
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, page web.Page)
}

type Handler struct {
	service *Service
	pages   Renderer
}

func NewHandler(service *Service, pages Renderer) *Handler {
	return &Handler{service: service, pages: pages}
}

// RegisterRoutes - 인증된 라우터에 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/images", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/images/{id}", h.Serve).Methods(http.MethodGet)
	log.Info().Msg("✅ Gallery routes registered: POST /images, GET /images/{id}")
}

// Upload - POST /images (multipart: kind, file, shared)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, r, http.StatusRequestEntityTooLarge, "Images must be 10 MiB or smaller.")
			return
		}
		h.fail(w, r, http.StatusBadRequest, "Upload a single image file.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Choose an image to upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	req := UploadRequest{
		OwnerID:  &user.UserID,
		Kind:     r.FormValue("kind"),
		FileName: header.Filename,
		Data:     data,
	}
	if shared, _ := strconv.ParseBool(r.FormValue("shared")); shared {
		if !user.IsAdmin {
			h.fail(w, r, http.StatusForbidden, "Only administrators can add shared images.")
			return
		}
		req.OwnerID = nil
	}

	img, err := h.service.Upload(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidKind):
		h.fail(w, r, http.StatusBadRequest, "Images must be a background or a character.")
		return
	case errors.Is(err, ErrTooLarge):
		h.fail(w, r, http.StatusRequestEntityTooLarge, "Images must be 10 MiB or smaller.")
		return
	case errors.Is(err, utils.ErrNotImage):
		h.fail(w, r, http.StatusUnsupportedMediaType, "That file is not an image.")
		return
	case err != nil:
		log.Error().Err(err).Str("user_id", user.UserID).Msg("❌ Image upload failed")
		h.fail(w, r, http.StatusInternalServerError, "Upload failed. Please try again.")
		return
	}

	log.Info().Str("image_id", img.ImageID).Str("kind", img.Kind).Bool("shared", img.Shared()).Msg("📤 Image uploaded")

	target := "/"
	if img.Kind == model.KindCharacter {
		target = "/characters?background=" + url.QueryEscape(r.FormValue("background"))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Serve - GET /images/{id}[?preview=1]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))

	data, mimeType, err := h.service.Open(r.Context(), user.UserID, id, preview)
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("image_id", id).Msg("❌ Failed to load image")
		http.Error(w, "failed to load image", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	user, _ := auth.UserFromContext(r.Context())
	h.pages.Render(w, status, "error", web.Page{
		Title: http.StatusText(status),
		User:  user,
		Error: message,
		Data:  map[string]any{"Status": status, "Message": message},
	})
}
