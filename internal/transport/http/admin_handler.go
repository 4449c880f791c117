package http

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/shimantoislam/flash-auth/internal/errors"
	"github.com/shimantoislam/flash-auth/internal/license"
	"github.com/shimantoislam/flash-auth/internal/middleware"
	"github.com/shimantoislam/flash-auth/internal/services"
)

// AdminHandler serves the operator API: login plus create/list/revoke.
type AdminHandler struct {
	service  services.LicenseService
	auth     *middleware.AdminAuth
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(service services.LicenseService, auth *middleware.AdminAuth, logger *slog.Logger) *AdminHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &AdminHandler{
		service:  service,
		auth:     auth,
		validate: v,
		logger:   logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns the admin router. Everything except login sits behind the
// session-token gate.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Post("/licenses", h.CreateLicense)
		r.Get("/licenses", h.ListLicenses)
		r.Delete("/licenses/{key}", h.RevokeLicense)
	})
	return r
}

// LoginRequest carries the operator password.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

// Bind implements render.Binder.
func (l *LoginRequest) Bind(r *http.Request) error {
	if l.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Login handles POST /api/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.ErrMissingParameter)
		return
	}

	token, err := h.auth.Login(req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "admin login rejected",
			slog.String("remote_addr", r.RemoteAddr))
		render.Render(w, r, apierrors.ErrInvalidPassword)
		return
	}

	h.logger.InfoContext(ctx, "admin login",
		slog.String("remote_addr", r.RemoteAddr))
	render.JSON(w, r, &LoginResponse{Token: token, IssuedAt: time.Now()})
}

// CreateLicenseRequest is the payload for issuing a new key.
type CreateLicenseRequest struct {
	Username    string `json:"username" validate:"required"`
	Expiry      string `json:"expiry" validate:"required,datetime=2006-01-02"`
	DeviceLimit int    `json:"device_limit" validate:"required,min=1"`
}

// Bind implements render.Binder; full validation happens in the handler so
// field names reach the error payload.
func (c *CreateLicenseRequest) Bind(r *http.Request) error {
	return nil
}

// CreateLicense handles POST /api/admin/licenses.
func (h *AdminHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateLicenseRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apierrors.ErrInvalidRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			render.Render(w, r, apierrors.Validation(first.Field(), validationMessage(first)))
			return
		}
		render.Render(w, r, apierrors.ErrInvalidRequest)
		return
	}

	summary, err := h.service.CreateLicense(ctx, req.Username, req.Expiry, req.DeviceLimit)
	if err != nil {
		render.Render(w, r, apierrors.FromDomain(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, licensePayload(*summary))
}

// ListLicensesResponse wraps the full license inventory.
type ListLicensesResponse struct {
	Licenses []LicensePayload `json:"licenses"`
	Count    int              `json:"count"`
}

// LicensePayload is the admin wire form of one license.
type LicensePayload struct {
	Key           string                  `json:"key"`
	Username      string                  `json:"username"`
	Expiry        license.Date            `json:"expiry"`
	DeviceLimit   int                     `json:"device_limit"`
	Devices       []license.DeviceBinding `json:"devices"`
	CreatedAt     time.Time               `json:"created_at"`
	Active        bool                    `json:"active"`
	RemainingDays int                     `json:"remaining_days"`
}

func licensePayload(s license.Summary) LicensePayload {
	return LicensePayload{
		Key:           s.Key,
		Username:      s.Username,
		Expiry:        s.Expiry,
		DeviceLimit:   s.DeviceLimit,
		Devices:       s.Devices,
		CreatedAt:     s.CreatedAt,
		Active:        s.Active,
		RemainingDays: s.RemainingDays,
	}
}

// ListLicenses handles GET /api/admin/licenses.
func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	summaries := h.service.ListLicenses(r.Context())
	payload := make([]LicensePayload, 0, len(summaries))
	for _, s := range summaries {
		payload = append(payload, licensePayload(s))
	}
	render.JSON(w, r, &ListLicensesResponse{Licenses: payload, Count: len(payload)})
}

// RevokeLicense handles DELETE /api/admin/licenses/{key}. Revoking an
// absent key succeeds: the endpoint is idempotent.
func (h *AdminHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	if err := h.service.RevokeLicense(ctx, key); err != nil {
		render.Render(w, r, apierrors.FromDomain(err))
		return
	}
	render.NoContent(w, r)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	default:
		return "is invalid"
	}
}
