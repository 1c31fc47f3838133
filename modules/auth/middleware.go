package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/model"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext - RequireUser가 넣어 둔 사용자 조회
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(contextKey{}).(*model.User)
	return user, ok && user != nil
}

// RequireUser - 세션 쿠키 확인. HTML 요청은 /login으로, /api/, /ws, /metrics는 401 JSON.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.currentUser(w, r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("⚠️  Session lookup failed")
			}
			h.deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}

	userID, err := h.sessions.Lookup(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}

	user, err := h.users.FetchUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}

	// Redis TTL과 쿠키 만료를 함께 연장
	h.setCookie(w, cookie.Value)
	return user, nil
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || r.URL.Path == "/metrics" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
		return
	}
	http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}
