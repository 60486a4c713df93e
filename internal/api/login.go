package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tissuemaps/tmserver/internal/auth"
	"github.com/tissuemaps/tmserver/internal/store"
)

// LoginHandler exchanges credentials for an access token. It lives outside
// the authenticated API tree and is mounted at /auth.
func LoginHandler(s store.Store, issuer *auth.TokenIssuer, log *slog.Logger) http.HandlerFunc {
	unauthorized := &Error{
		Type:       "NotAuthorizedError",
		Message:    "invalid credentials",
		StatusCode: http.StatusUnauthorized,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			e := malformedf("invalid request body: %v", err)
			writeJSON(w, e.StatusCode, map[string]interface{}{"error": e})
			return
		}
		if req.Username == "" || req.Password == "" {
			e := malformedf("username and password are required")
			writeJSON(w, e.StatusCode, map[string]interface{}{"error": e})
			return
		}

		user, err := s.UserByName(r.Context(), req.Username)
		if errors.Is(err, store.ErrNotFound) {
			// Same response as a bad password, so usernames cannot be probed.
			writeJSON(w, unauthorized.StatusCode, map[string]interface{}{"error": unauthorized})
			return
		}
		if err != nil {
			e := internalErr(err)
			log.Error("login lookup failed", slog.Any("error", err))
			writeJSON(w, e.StatusCode, map[string]interface{}{"error": e})
			return
		}
		if !auth.CheckPassword(user.PasswordHash, req.Password) {
			writeJSON(w, unauthorized.StatusCode, map[string]interface{}{"error": unauthorized})
			return
		}

		token, err := issuer.Issue(user.ID)
		if err != nil {
			e := internalErr(err)
			log.Error("token issue failed", slog.Any("error", err))
			writeJSON(w, e.StatusCode, map[string]interface{}{"error": e})
			return
		}
		log.Info("user logged in", slog.String("username", user.Name))
		writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
	}
}
