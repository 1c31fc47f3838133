package auth

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/web"
)

const (
	CookieName        = "sticker_session"
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt 입력 한계
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

var (
	ErrInvalidUsername = errors.New("username must be 3-32 letters, digits, '_', '.' or '-'")
	ErrPasswordShort   = errors.New("password must be at least 8 characters")
	ErrPasswordLong    = errors.New("password must be at most 72 bytes")
)

// UserStore - 사용자 저장소 (database.Client 구현)
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error)
	FetchUserByUsername(ctx context.Context, username string) (*model.User, error)
	FetchUser(ctx context.Context, userID string) (*model.User, error)
}

// Sessions - 세션 저장소 (SessionStore 구현)
type Sessions interface {
	Create(ctx context.Context, userID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	TTL() time.Duration
}

// Renderer draws a named page.
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, page web.Page)
}

// LoginForm - 로그인 페이지 데이터
type LoginForm struct {
	Username string
	Next     string
}

// RegisterForm - 회원가입 페이지 데이터
type RegisterForm struct {
	Username string
}

type Handler struct {
	users        UserStore
	sessions     Sessions
	pages        Renderer
	cookieSecure bool
	bcryptCost   int
}

// NewHandler - 인증 핸들러 생성
func NewHandler(users UserStore, sessions Sessions, pages Renderer, cookieSecure bool) *Handler {
	return &Handler{
		users:        users,
		sessions:     sessions,
		pages:        pages,
		cookieSecure: cookieSecure,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.RegisterPage).Methods(http.MethodGet)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	log.Info().Msg("✅ Auth routes registered: /login, /register, /logout")
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusOK, "login", web.Page{
		Title: "Sign in",
		Data:  LoginForm{Next: safeNext(r.URL.Query().Get("next"))},
	})
}

// Login - POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	next := safeNext(r.PostFormValue("next"))

	fail := func(status int, msg string) {
		h.pages.Render(w, status, "login", web.Page{
			Title: "Sign in",
			Error: msg,
			Data:  LoginForm{Username: username, Next: next},
		})
	}

	user, err := h.users.FetchUserByUsername(r.Context(), username)
	if errors.Is(err, database.ErrNotFound) {
		fail(http.StatusUnauthorized, "Invalid username or password.")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("❌ Failed to load user")
		fail(http.StatusInternalServerError, "Sign in is unavailable right now.")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("username", username).Msg("⚠️  Login rejected")
		fail(http.StatusUnauthorized, "Invalid username or password.")
		return
	}

	if err := h.startSession(w, r, user.UserID); err != nil {
		fail(http.StatusInternalServerError, "Sign in is unavailable right now.")
		return
	}

	log.Info().Str("user_id", user.UserID).Msg("🔑 User signed in")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusOK, "register", web.Page{Title: "Create account", Data: RegisterForm{}})
}

// Register - POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	fail := func(status int, msg string) {
		h.pages.Render(w, status, "register", web.Page{
			Title: "Create account",
			Error: msg,
			Data:  RegisterForm{Username: username},
		})
	}

	if err := ValidateCredentials(username, password); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to hash password")
		fail(http.StatusInternalServerError, "Registration is unavailable right now.")
		return
	}

	user, err := h.users.CreateUser(r.Context(), username, string(hash))
	if errors.Is(err, database.ErrConflict) {
		fail(http.StatusConflict, "That username is taken.")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("❌ Failed to create user")
		fail(http.StatusInternalServerError, "Registration is unavailable right now.")
		return
	}

	if err := h.startSession(w, r, user.UserID); err != nil {
		fail(http.StatusInternalServerError, "Registration is unavailable right now.")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout - POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("⚠️  Failed to delete session")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	token, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("❌ Failed to create session")
		return err
	}
	h.setCookie(w, token)
	return nil
}

func (h *Handler) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateCredentials checks the registration rules for a username and password.
func ValidateCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return ErrPasswordShort
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordLong
	}
	return nil
}

// safeNext only allows local redirect targets.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
