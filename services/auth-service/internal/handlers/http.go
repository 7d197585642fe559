package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/salonbookhq/salonbook/libs/auth"
	"github.com/salonbookhq/salonbook/libs/httpx"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/audit"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/sessions"
	"github.com/salonbookhq/salonbook/services/auth-service/internal/storage"
)

const accessTokenTTL = time.Hour

type Handler struct {
	users    *storage.UserRepository
	sessions *sessions.Repository
	audit    *audit.Repository
	signer   auth.TokenSigner
	logger   *slog.Logger
	now      func() time.Time
}

func New(users *storage.UserRepository, sess *sessions.Repository, aud *audit.Repository, signer auth.TokenSigner, logger *slog.Logger) *Handler {
	return &Handler{
		users:    users,
		sessions: sess,
		audit:    aud,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.RegisterOwner)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/users", h.CreateStaff)
	mux.HandleFunc("GET /api/v1/auth/users", h.ListUsers)
	mux.HandleFunc("GET /api/v1/auth/audit", h.Audit)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
}

type registerRequest struct {
	SalonID  string `json:"salon_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r registerRequest) validate(requireRole bool) error {
	if r.SalonID == "" {
		return errors.New("salon_id is required")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if requireRole {
		switch r.Role {
		case storage.RoleReceptionist, storage.RoleStylist:
		default:
			return errors.New("role must be receptionist or stylist")
		}
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         storage.User `json:"user"`
}

// RegisterOwner creates the salon's first account. Staff accounts go
// through CreateStaff so only an owner can add them.
func (h *Handler) RegisterOwner(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(false); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.createUser(w, r, req, storage.RoleOwner)
	if err != nil {
		return
	}
	h.audit.Record(r.Context(), user.SalonID, user.ID, "auth.owner.registered", map[string]string{"email": user.Email})
	h.issueTokens(w, r, user, http.StatusCreated)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	actorID, role := r.Header.Get("X-User-Id"), r.Header.Get("X-Role")
	if role != storage.RoleOwner {
		httpx.Error(w, http.StatusForbidden, "only owners can add staff")
		return
	}
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SalonID = r.Header.Get("X-Salon-Id")
	if err := req.validate(true); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.createUser(w, r, req, req.Role)
	if err != nil {
		return
	}
	h.audit.Record(r.Context(), user.SalonID, actorID, "auth.staff.created", map[string]string{
		"email": user.Email,
		"role":  user.Role,
	})
	httpx.WriteJSON(w, http.StatusCreated, user)
}

// createUser hashes the password and inserts the row, writing the error
// response itself so both registration paths share the mapping.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request, req registerRequest, role string) (storage.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("password hash failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return storage.User{}, err
	}
	user, err := h.users.Create(r.Context(), storage.User{
		SalonID:      req.SalonID,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if storage.IsDuplicate(err) {
			httpx.Error(w, http.StatusConflict, "an account with that email already exists")
			return storage.User{}, err
		}
		h.logger.Error("user insert failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return storage.User{}, err
	}
	return user, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !storage.IsNotFound(err) {
			h.logger.Error("user lookup failed", "err", err)
		}
		// Same response for unknown email and wrong password.
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.audit.Record(r.Context(), user.SalonID, user.ID, "auth.login.failed", map[string]string{"email": user.Email})
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.audit.Record(r.Context(), user.SalonID, user.ID, "auth.login.succeeded", map[string]string{"email": user.Email})
	h.issueTokens(w, r, user, http.StatusOK)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.Decode(r, &req); err != nil || req.RefreshToken == "" {
		httpx.Error(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	userID, err := h.sessions.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalidToken) {
			httpx.Error(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		h.logger.Error("refresh rotation failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("user lookup failed", "err", err, "user_id", userID)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.issueTokens(w, r, user, http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		httpx.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.sessions.RevokeAll(r.Context(), userID); err != nil {
		h.logger.Error("logout failed", "err", err, "user_id", userID)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.audit.Record(r.Context(), r.Header.Get("X-Salon-Id"), userID, "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		httpx.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("user lookup failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Role") != storage.RoleOwner {
		httpx.Error(w, http.StatusForbidden, "only owners can list accounts")
		return
	}
	users, err := h.users.ListForSalon(r.Context(), r.Header.Get("X-Salon-Id"))
	if err != nil {
		h.logger.Error("user list failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if users == nil {
		users = []storage.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Role") != storage.RoleOwner {
		httpx.Error(w, http.StatusForbidden, "only owners can read the audit log")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.audit.ListForSalon(r.Context(), r.Header.Get("X-Salon-Id"), limit)
	if err != nil {
		h.logger.Error("audit list failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	doc := h.signer.JWKS()
	if doc == nil {
		httpx.Error(w, http.StatusNotFound, "no published keys")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, user storage.User, status int) {
	now := h.now()
	access, err := h.signer.Sign(auth.Claims{
		Sub:     user.ID,
		SalonID: user.SalonID,
		Role:    user.Role,
		Iat:     now.Unix(),
		Exp:     now.Add(accessTokenTTL).Unix(),
	})
	if err != nil {
		h.logger.Error("token sign failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	refresh, err := sessions.NewToken()
	if err != nil {
		h.logger.Error("refresh token generation failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sessions.Issue(r.Context(), user.ID, refresh); err != nil {
		h.logger.Error("refresh token store failed", "err", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, status, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
		User:         user,
	})
}
