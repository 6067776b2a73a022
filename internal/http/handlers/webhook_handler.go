package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfi-tracker/internal/services"
)

// WebhookResponse acknowledges a push notification.
type WebhookResponse struct {
	Status  string           `json:"status"  example:"ok"`
	Outcome services.Outcome `json:"outcome" example:"matched"`
}

// GmailPush godoc
// @ID          gmailPush
// @Summary     Inbound mail push notification
// @Description Receives a Pub/Sub push envelope for a new Gmail message, fetches the message,
// @Description matches it to an RFI and records the reply. Any well-formed envelope is
// @Description acknowledged with 200 whatever the match outcome; redelivery is harmless.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       body  body  object  true  "Pub/Sub push envelope"
// @Success     200  {object} handlers.WebhookResponse
// @Failure     400  {object} handlers.ErrorResponse "Malformed envelope; nothing recorded"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     502  {object} handlers.ErrorResponse "Message could not be fetched; retry"
// @Failure     500  {object} handlers.ErrorResponse "Storage failure; retry"
// @Router      /webhooks/gmail/push [post]
func (h *Handlers) GmailPush(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.WebhookMaxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "push body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeMalformedWebhook, "could not read body")
		return
	}

	res, err := h.ingest.HandlePush(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, WebhookResponse{Status: "ok", Outcome: res.Outcome})
}
