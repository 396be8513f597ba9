package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/models"
)

const (
	minPasswordLen = 8
	maxAuthBody    = 16 << 10
)

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is returned by register and login. Account is only set on register.
type Session struct {
	Token   string       `json:"token"`
	Account *AccountView `json:"account,omitempty"`
}

type AccountView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
	Held        int64  `json:"held"`
}

type Handler struct {
	svc Service
	log logrus.FieldLogger
}

func NewHandler(svc Service, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: svc, log: log}
}

// Register creates an account, grants the starting credits and signs the user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readCredentials(w, r)
	if !ok {
		return
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	switch {
	case in.DisplayName == "":
		fail(w, http.StatusBadRequest, "display_name is required")
		return
	case len(in.Password) < minPasswordLen:
		fail(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	acc, err := h.svc.Register(r.Context(), in.Email, in.Password, in.DisplayName)
	if errors.Is(err, ErrDuplicateEmail) {
		fail(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("register failed")
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.log.WithError(err).WithField("user_id", acc.ID).Error("token after register failed")
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": acc.ID, "balance": acc.Balance}).Info("account registered")
	reply(w, http.StatusCreated, Session{Token: token, Account: viewOf(acc)})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readCredentials(w, r)
	if !ok {
		return
	}
	token, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		fail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("login failed")
		fail(w, http.StatusInternalServerError, "login failed")
		return
	}
	reply(w, http.StatusOK, Session{Token: token})
}

// readCredentials decodes the body and normalizes the email. It writes the
// error response itself and reports whether the handler should continue.
func (h *Handler) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var in credentials
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return in, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(&in); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON")
		return in, false
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" {
		fail(w, http.StatusBadRequest, "email and password are required")
		return in, false
	}
	return in, true
}

func viewOf(a *models.Account) *AccountView {
	return &AccountView{
		ID:          a.ID.String(),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Balance:     a.Balance,
		Held:        a.Held,
	}
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	reply(w, status, map[string]string{"error": msg})
}
