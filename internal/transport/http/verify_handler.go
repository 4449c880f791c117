package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/shimantoislam/flash-auth/internal/license"
	"github.com/shimantoislam/flash-auth/internal/services"
)

// VerifyHandler serves the client-facing verification endpoint.
type VerifyHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewVerifyHandler creates the handler.
func NewVerifyHandler(service services.LicenseService, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "verify")),
	}
}

// Routes returns the router for the verification endpoint.
func (h *VerifyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Verify)
	return r
}

var errMissingParameters = errors.New("missing parameters")

// VerifyRequest is the wire payload a client presents: its license key plus
// the device fingerprint.
type VerifyRequest struct {
	LicenseKey string `json:"license_key"`
	HWID       string `json:"hwid"`
	IP         string `json:"ip"`
}

// Bind implements render.Binder. All three fields are required.
func (v *VerifyRequest) Bind(r *http.Request) error {
	if v.LicenseKey == "" || v.HWID == "" || v.IP == "" {
		return errMissingParameters
	}
	return nil
}

// VerifyResponse is the wire response for every verification outcome,
// decision or request error alike.
type VerifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	httpStatus int
}

// Render implements render.Renderer.
func (v *VerifyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, v.httpStatus)
	return nil
}

// decisionResponse maps an engine decision to its wire form. The messages
// are part of the client contract and must not drift.
func decisionResponse(d license.Decision) *VerifyResponse {
	switch d {
	case license.DecisionRegistered:
		return &VerifyResponse{Status: "success", Message: "Device registered", httpStatus: http.StatusOK}
	case license.DecisionAlreadyRegistered:
		return &VerifyResponse{Status: "success", Message: "Device already registered", httpStatus: http.StatusOK}
	case license.DecisionInvalidKey:
		return &VerifyResponse{Status: "error", Message: "Invalid license key", httpStatus: http.StatusNotFound}
	case license.DecisionExpired:
		return &VerifyResponse{Status: "error", Message: "License expired", httpStatus: http.StatusForbidden}
	case license.DecisionDeviceLimitReached:
		return &VerifyResponse{Status: "error", Message: "Device limit reached", httpStatus: http.StatusForbidden}
	default:
		return &VerifyResponse{Status: "error", Message: "Internal server error", httpStatus: http.StatusInternalServerError}
	}
}

// Verify handles POST /api/verify.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyRequest
	if err := render.Bind(r, &req); err != nil {
		// Malformed body or missing fields: the engine is never invoked.
		render.Render(w, r, &VerifyResponse{
			Status:     "error",
			Message:    "Missing parameters",
			httpStatus: http.StatusBadRequest,
		})
		return
	}

	decision, err := h.service.VerifyDevice(ctx, req.LicenseKey, req.HWID, req.IP)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed",
			slog.String("error", err.Error()))
		render.Render(w, r, &VerifyResponse{
			Status:     "error",
			Message:    "Internal server error",
			httpStatus: http.StatusInternalServerError,
		})
		return
	}

	render.Render(w, r, decisionResponse(decision))
}
