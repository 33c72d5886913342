package http

import (
	"context"
	"log/slog"
	"net/http"
)

type otpService interface {
	Issue(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}

// OTPHandler sends and verifies signup codes.
type OTPHandler struct {
	service   otpService
	responder responder
	logger    *slog.Logger
}

func NewOTPHandler(service otpService, logger *slog.Logger) *OTPHandler {
	base := defaultLogger(logger)
	return &OTPHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.Issue(r.Context(), req.Email); err != nil {
		handlerLogger(r.Context(), h.logger, "OTPHandler", "Send").WarnContext(r.Context(), "failed to send otp", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "OTP sent successfully"})
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.Verify(r.Context(), req.Email, req.OTP); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "OTP verified successfully"})
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
