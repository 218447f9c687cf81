package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Blackwoodproductions/webstack-services/internal/upstream/stripe"
)

type checkoutRequest struct {
	PriceID           string `json:"price_id" validate:"required"`
	Quantity          int64  `json:"quantity" validate:"omitempty,min=1"`
	Mode              string `json:"mode" validate:"omitempty,oneof=payment subscription"`
	CustomerEmail     string `json:"customer_email" validate:"omitempty,email"`
	ClientReferenceID string `json:"client_reference_id"`
	SuccessURL        string `json:"success_url" validate:"omitempty,url"`
	CancelURL         string `json:"cancel_url" validate:"omitempty,url"`
}

func (s *Server) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	params := stripe.CheckoutParams{
		PriceID:           req.PriceID,
		Quantity:          req.Quantity,
		Mode:              req.Mode,
		CustomerEmail:     req.CustomerEmail,
		ClientReferenceID: req.ClientReferenceID,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
	}
	if params.Quantity == 0 {
		params.Quantity = 1
	}
	if params.Mode == "" {
		params.Mode = "subscription"
	}
	if params.SuccessURL == "" {
		params.SuccessURL = s.cfg.Checkout.SuccessURL
	}
	if params.CancelURL == "" {
		params.CancelURL = s.cfg.Checkout.CancelURL
	}

	session, err := s.deps.Stripe.CreateCheckoutSession(r.Context(), params)
	if err != nil {
		var apiErr *stripe.APIError
		if errors.As(err, &apiErr) {
			writeError(w, passthroughStatus(apiErr.StatusCode), apiErr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, "checkout session could not be created")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// passthroughStatus mirrors client-class upstream codes and collapses
// everything else to 502.
func passthroughStatus(code int) int {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusPaymentRequired,
		http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
		return code
	default:
		return http.StatusBadGateway
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "coverletter" {
			return "cover letter must be at least 50 characters"
		}
		return fmt.Sprintf("invalid field %s (%s)", strings.ToLower(fe.Field()), fe.Tag())
	}
	return "invalid request"
}
