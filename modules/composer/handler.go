package composer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/auth"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/web"
)

const historyLimit = 50

// ImageLister - 선택 화면용 이미지 목록 (gallery.Service 구현)
type ImageLister interface {
	List(ctx context.Context, userID, kind string) ([]model.Image, error)
}

// Renderer draws a named page.
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, page web.Page)
}

// Handler - 스티커 생성 흐름 HTTP 핸들러
type Handler struct {
	service *Service
	images  ImageLister
	pages   Renderer
}

func NewHandler(service *Service, images ImageLister, pages Renderer) *Handler {
	return &Handler{service: service, images: images, pages: pages}
}

// RegisterRoutes - 인증된 라우터에 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Backgrounds).Methods(http.MethodGet)
	r.HandleFunc("/characters", h.Characters).Methods(http.MethodGet)
	r.HandleFunc("/subject", h.Subject).Methods(http.MethodGet)
	r.HandleFunc("/style", h.Style).Methods(http.MethodGet)
	r.HandleFunc("/generate", h.Generate).Methods(http.MethodPost)
	r.HandleFunc("/generations", h.History).Methods(http.MethodGet)
	r.HandleFunc("/generations/{id}", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/generations/{id}", h.StatusJSON).Methods(http.MethodGet)
	r.HandleFunc("/api/generations/{id}/cancel", h.CancelJSON).Methods(http.MethodPost)
	log.Info().Msg("✅ Composer routes registered: /, /characters, /subject, /style, /generate, /generations, /api/generations")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	user, _ := auth.UserFromContext(r.Context())
	h.pages.Render(w, status, name, web.Page{Title: title, User: user, Data: data})
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	user, _ := auth.UserFromContext(r.Context())
	h.pages.Render(w, status, "error", web.Page{
		Title: http.StatusText(status),
		User:  user,
		Error: message,
		Data:  ErrorPage{Status: status, Message: message},
	})
}

// Backgrounds - GET /
func (h *Handler) Backgrounds(w http.ResponseWriter, r *http.Request) {
	h.picker(w, r, model.KindBackground, "", "Choose a background")
}

// Characters - GET /characters?background=
func (h *Handler) Characters(w http.ResponseWriter, r *http.Request) {
	backgroundID := r.URL.Query().Get("background")
	if backgroundID == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.picker(w, r, model.KindCharacter, backgroundID, "Choose a character")
}

func (h *Handler) picker(w http.ResponseWriter, r *http.Request, kind, backgroundID, title string) {
	user, _ := auth.UserFromContext(r.Context())
	images, err := h.images.List(r.Context(), user.UserID, kind)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("❌ Failed to list images")
		h.renderError(w, r, http.StatusInternalServerError, "Could not load images.")
		return
	}
	h.render(w, r, http.StatusOK, "picker", title, PickerPage{Kind: kind, Images: images, BackgroundID: backgroundID})
}

// Subject - GET /subject?background=&character=
func (h *Handler) Subject(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := SubjectPage{
		BackgroundID: q.Get("background"),
		CharacterID:  q.Get("character"),
		Subject:      q.Get("subject"),
		Suggestions:  SubjectSuggestions,
		MaxLength:    MaxSubjectLength,
	}
	if page.BackgroundID == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if page.CharacterID == "" {
		http.Redirect(w, r, "/characters?background="+url.QueryEscape(page.BackgroundID), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "subject", "Pick a theme", page)
}

// Style - GET /style?background=&character=&subject=
func (h *Handler) Style(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subject, err := NormalizeSubject(q.Get("subject"))
	if err != nil {
		user, _ := auth.UserFromContext(r.Context())
		h.pages.Render(w, http.StatusBadRequest, "subject", web.Page{
			Title: "Pick a theme",
			User:  user,
			Error: "Enter a theme of at most 80 characters.",
			Data: SubjectPage{
				BackgroundID: q.Get("background"),
				CharacterID:  q.Get("character"),
				Subject:      q.Get("subject"),
				Suggestions:  SubjectSuggestions,
				MaxLength:    MaxSubjectLength,
			},
		})
		return
	}
	h.render(w, r, http.StatusOK, "style", "Pick a style", StylePage{
		BackgroundID: q.Get("background"),
		CharacterID:  q.Get("character"),
		Subject:      subject,
		Styles:       h.service.Styles().Entries(),
	})
}

// Generate - POST /generate → 303 /generations/{id}
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	req := SubmitRequest{
		BackgroundImageID: r.PostFormValue("background"),
		CharacterImageID:  r.PostFormValue("character"),
		Subject:           r.PostFormValue("subject"),
		Style:             r.PostFormValue("style"),
	}

	gen, err := h.service.Submit(r.Context(), user.UserID, req)
	if err != nil {
		status, msg := submitErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("user_id", user.UserID).Msg("❌ Failed to submit generation")
		}
		h.renderError(w, r, status, msg)
		return
	}

	http.Redirect(w, r, "/generations/"+gen.GenerationID, http.StatusSeeOther)
}

// History - GET /generations
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	gens, err := h.service.List(r.Context(), user.UserID, historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to list generations")
		h.renderError(w, r, http.StatusInternalServerError, "Could not load your stickers.")
		return
	}
	h.render(w, r, http.StatusOK, "history", "My stickers", HistoryPage{Generations: gens})
}

// Status - GET /generations/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.lookup(w, r, false)
	if !ok {
		return
	}

	page := GenerationPage{Generation: gen, Cancellable: !gen.Terminal()}
	status := http.StatusOK
	if gen.Status == model.StatusFailed && gen.ErrorCode != nil {
		page.Message = UserMessage(*gen.ErrorCode)
		status = StatusForErrorCode(*gen.ErrorCode)
	}
	h.render(w, r, status, "generation", "Your sticker", page)
}

// StatusJSON - GET /api/generations/{id}
func (h *Handler) StatusJSON(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.lookup(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewStatusResponse(gen))
}

// CancelJSON - POST /api/generations/{id}/cancel
func (h *Handler) CancelJSON(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	gen, err := h.service.Cancel(r.Context(), user.UserID, id)
	switch {
	case errors.Is(err, ErrGenerationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "generation not found"})
	case errors.Is(err, ErrNotCancellable):
		writeJSON(w, http.StatusConflict, NewStatusResponse(gen))
	case err != nil:
		log.Error().Err(err).Str("generation_id", id).Msg("❌ Cancel failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cancel failed"})
	default:
		writeJSON(w, http.StatusOK, NewStatusResponse(gen))
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, asJSON bool) (*model.Generation, bool) {
	user, _ := auth.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	gen, err := h.service.Get(r.Context(), user.UserID, id)
	if err == nil {
		return gen, true
	}

	status := http.StatusInternalServerError
	msg := "Could not load this sticker."
	if errors.Is(err, ErrGenerationNotFound) {
		status, msg = http.StatusNotFound, "Sticker not found."
	} else {
		log.Error().Err(err).Str("generation_id", id).Msg("❌ Failed to load generation")
	}

	if asJSON {
		writeJSON(w, status, map[string]string{"error": msg})
	} else {
		h.renderError(w, r, status, msg)
	}
	return nil, false
}

// submitErrorStatus maps a Submit error to an HTTP status and a user message.
func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidSubject):
		return http.StatusBadRequest, "Enter a theme of at most 80 characters."
	case errors.Is(err, ErrUnknownStyle):
		return http.StatusBadRequest, "That style is not available."
	case errors.Is(err, ErrWrongImageKind):
		return http.StatusBadRequest, "Pick one background and one character."
	case errors.Is(err, ErrImageNotFound):
		return http.StatusNotFound, "One of the selected images could not be found."
	default:
		return http.StatusInternalServerError, "Could not start your sticker. Please try again."
	}
}

// StatusForErrorCode - 실패한 generation 화면의 HTTP status
func StatusForErrorCode(code string) int {
	switch code {
	case model.ErrorCodeUnknownStyle:
		return http.StatusBadRequest
	case model.ErrorCodeMissingImage:
		return http.StatusNotFound
	case model.ErrorCodeProvider, model.ErrorCodeNoImage:
		return http.StatusBadGateway
	case model.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case model.ErrorCodeCredentials:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to write JSON response")
	}
}
