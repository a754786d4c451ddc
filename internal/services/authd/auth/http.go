package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
)

const (
	msgForbidden   = "Access is forbidden"
	msgCredentials = "Email or password is wrong!"
	maxBodyBytes   = 1 << 16
)

type HTTPHandler struct {
	uc  *Usecase
	log *zap.Logger
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// NewHTTPHandler mounts the JSON routes on a gateway mux.
func NewHTTPHandler(uc *Usecase, log *zap.Logger) (*runtime.ServeMux, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &HTTPHandler{uc: uc, log: log}
	mux := runtime.NewServeMux()
	routes := []struct {
		method, path string
		fn           runtime.HandlerFunc
	}{
		{http.MethodPost, "/auth/register", h.register},
		{http.MethodPost, "/auth/login", h.login},
		{http.MethodGet, "/auth/refresh_token", h.refresh},
		{http.MethodGet, "/auth/validate", h.guarded(h.me)},
		{http.MethodPost, "/auth/logout", h.logout},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, rt.fn); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (h *HTTPHandler) register(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var body credentialsBody
	if !decodeBody(w, r, &body) {
		return
	}
	u, pair, err := h.uc.SignUp(r.Context(), body.Email, body.Password, body.FullName)
	if err != nil {
		h.writeErr(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          u,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h *HTTPHandler) login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var body credentialsBody
	if !decodeBody(w, r, &body) {
		return
	}
	pair, err := h.uc.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeErr(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *HTTPHandler) refresh(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	raw := refreshFromHeader(r)
	if raw == "" {
		writeMessage(w, http.StatusForbidden, msgForbidden)
		return
	}
	pair, err := h.uc.Refresh(r.Context(), raw)
	if err != nil {
		h.writeErr(w, err, http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// me answers the caller's identity. It runs behind RequireAuth, so the id is already on the context.
func (h *HTTPHandler) me(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromCtx(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	u, err := h.uc.Me(r.Context(), uid)
	if errors.Is(err, user.ErrNotFound) {
		writeMessage(w, http.StatusUnauthorized, msgForbidden)
		return
	}
	if err != nil {
		h.writeErr(w, err, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": uid, "user": u})
}

// guarded adapts a RequireAuth-wrapped handler to a gateway route.
func (h *HTTPHandler) guarded(next http.HandlerFunc) runtime.HandlerFunc {
	guard := RequireAuth(h.uc.Validate, next)
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		guard.ServeHTTP(w, r)
	}
}

func (h *HTTPHandler) logout(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	raw := refreshFromHeader(r)
	if raw == "" && r.ContentLength != 0 {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		raw = body.RefreshToken
	}
	if err := h.uc.Logout(r.Context(), raw); err != nil {
		h.writeErr(w, err, http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireAuth lets a request through only with a valid bearer access token and puts the
// resolved user id into its context.
func RequireAuth(validate func(string) (string, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerValue(r.Header.Get("Authorization"))
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		uid, err := validate(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
	})
}

// writeErr answers token and credential failures with deny, whose value depends on the route.
func (h *HTTPHandler) writeErr(w http.ResponseWriter, err error, deny int) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrEmailExists):
		writeMessage(w, http.StatusConflict, "Email already exists!")
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		writeMessage(w, deny, msgCredentials)
	case errors.Is(err, domainauth.ErrReused), errors.Is(err, domainauth.ErrInvalid),
		errors.Is(err, domainauth.ErrExpired), errors.Is(err, domainauth.ErrUnknown):
		writeMessage(w, deny, msgForbidden)
	case errors.Is(err, domainauth.ErrStoreUnavailable):
		writeMessage(w, http.StatusServiceUnavailable, "Service unavailable, try again")
	default:
		h.log.Error("auth http internal error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal error")
	}
}

func refreshFromHeader(r *http.Request) string {
	if v := r.Header.Get("refresh_token"); v != "" {
		return v
	}
	return r.Header.Get("X-Refresh-Token")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Please send a valid JSON body!")
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
