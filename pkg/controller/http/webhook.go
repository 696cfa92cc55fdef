package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/interfaces"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// WebhookHandler verifies and admits GitHub webhook deliveries. The shared
// secret is per-repository, so the subscription lookup happens before
// signature verification.
type WebhookHandler struct {
	subs      interfaces.SubscriptionSource
	admission interfaces.AdmissionUseCase
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subs interfaces.SubscriptionSource, admission interfaces.AdmissionUseCase) *WebhookHandler {
	return &WebhookHandler{
		subs:      subs,
		admission: admission,
	}
}

// Handle processes one webhook request. The sender only ever sees a coarse
// status code; the useful detail goes to the log and the event row.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		writeError(w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		writeError(w, goerr.New("missing delivery ID"), http.StatusBadRequest)
		return
	}
	eventType := r.Header.Get("X-GitHub-Event")

	repoID, err := model.ResolveRepoID(body)
	if err != nil {
		logger.Warn("Failed to resolve repository from payload",
			"delivery_id", deliveryID, "error", err)
		writeError(w, goerr.New("repository not resolvable"), http.StatusBadRequest)
		return
	}

	sub, err := h.subs.SubscriptionByRepo(ctx, repoID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrSubscriptionNotFound):
			writeError(w, goerr.New("repository not subscribed"), http.StatusNotFound)
		case errors.Is(err, types.ErrAmbiguousSubscription):
			logger.Warn("Ambiguous subscription for repository",
				"repo_id", repoID, "delivery_id", deliveryID)
			writeError(w, goerr.New("subscription not resolvable"), http.StatusBadRequest)
		default:
			logger.Error("Subscription lookup failed",
				"repo_id", repoID, "error", err)
			writeError(w, goerr.New("internal error"), http.StatusInternalServerError)
		}
		return
	}

	if !verifySignature(sub.Secret, body, r.Header.Get("X-Hub-Signature-256")) {
		logger.Warn("Invalid webhook signature",
			"delivery_id", deliveryID, "repo_id", repoID)
		writeError(w, goerr.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	// An authenticated delivery for an unsubscribed event type is still
	// admitted: the subscription set may lag behind what the sender ships,
	// and dropping verified data is worse than storing it.
	if !sub.Subscribed(eventType) {
		logger.Warn("Event type not in subscription, admitting anyway",
			"event_type", eventType, "repo_id", repoID)
	}

	event, admitted, err := h.admission.AdmitDelivery(ctx, &model.InboundDelivery{
		ID:         types.DeliveryID(deliveryID),
		Type:       eventType,
		RepoID:     repoID,
		ReceivedAt: time.Now(),
		RawPayload: body,
	})
	if err != nil {
		if errors.Is(err, types.ErrStorageConflict) {
			logger.Error("Admission conflict outside delivery dedup",
				"delivery_id", deliveryID, "error", err)
			writeError(w, goerr.New("conflicting event"), http.StatusConflict)
			return
		}
		logger.Error("Failed to admit delivery",
			"delivery_id", deliveryID, "error", err)
		writeError(w, goerr.New("admission failed"), http.StatusInternalServerError)
		return
	}

	status := "admitted"
	if !admitted {
		status = "duplicate"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":   status,
		"event_id": string(event.ID),
	}); err != nil {
		logger.Error("Failed to encode webhook response", "error", err)
	}
}

// verifySignature checks the X-Hub-Signature-256 header against the raw body.
// Both the scheme prefix and the hex digest are compared case-insensitively,
// and the digest comparison is constant time.
func verifySignature(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.ToLower(signature), "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
