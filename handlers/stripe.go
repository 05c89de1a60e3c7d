package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"veo3.app/license/internal/logger"
	"veo3.app/license/models"
)

// LicenseTypeMetadataKey names the checkout session metadata entry that
// carries the purchased license type.
const LicenseTypeMetadataKey = "license_type"

type WebhookResponse struct {
	Received bool `json:"received"`
}

// Stripe turns paid checkout sessions into pending licenses and mails the
// key to the buyer. Every other event is acknowledged and ignored.
func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "Invalid payload"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "Invalid signature"})
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		logger.Debug("Ignoring webhook event", map[string]interface{}{
			"event_type": string(event.Type),
		})
		respond(w, r, http.StatusOK, WebhookResponse{Received: true})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		logger.Error("Failed to unmarshal checkout session", map[string]interface{}{
			"error":    err.Error(),
			"event_id": event.ID,
		})
		respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "Invalid payload"})
		return
	}

	if err := s.handleCheckoutComplete(r.Context(), &session); err != nil {
		logger.Error("Failed to provision license from checkout", map[string]interface{}{
			"error":    err.Error(),
			"event_id": event.ID,
		})
		respond(w, r, http.StatusInternalServerError, ErrorResponse{Error: internalErrorMessage})
		return
	}

	respond(w, r, http.StatusOK, WebhookResponse{Received: true})
}

func (s *Server) handleCheckoutComplete(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logger.Info("Skipping unpaid checkout session", map[string]interface{}{
			"payment_status": string(session.PaymentStatus),
		})
		return nil
	}

	customerEmail := checkoutEmail(session)
	licenseType := strings.TrimSpace(session.Metadata[LicenseTypeMetadataKey])
	if licenseType == "" {
		licenseType = models.DefaultType
	}

	result, err := s.Registry.Provision(ctx, licenseType, customerEmail)
	if err != nil {
		return fmt.Errorf("failed to provision license: %w", err)
	}

	logger.Info("License provisioned from checkout", map[string]interface{}{
		"license_type": result.Type,
	})

	if s.mailer == nil || customerEmail == "" {
		logger.Warn("License key not mailed", map[string]interface{}{
			"mailer_configured": s.mailer != nil,
			"has_recipient":     customerEmail != "",
		})
		return nil
	}

	// The license exists at this point; a mail failure must not make Stripe
	// retry and issue a second key.
	if err := s.mailer.SendLicenseKey(ctx, customerEmail, result.Key, result.Type); err != nil {
		logger.Error("Failed to send license email", map[string]interface{}{
			"error": err.Error(),
			"email": customerEmail,
		})
	}

	return nil
}

func checkoutEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}
