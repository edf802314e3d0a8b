package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/metrics"
	"daraja-mcp/internal/model"
	"daraja-mcp/internal/store"
	"daraja-mcp/pkg/logger"
)

// CallbackHandler receives payment results posted by the Daraja gateway
type CallbackHandler struct {
	store  *store.NotificationStore
	logger *logger.Logger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(st *store.NotificationStore, log *logger.Logger) *CallbackHandler {
	return &CallbackHandler{
		store:  st,
		logger: log,
	}
}

// HandleCallback handles POST /mpesa/callback.
// The gateway retries on any non-success response and a malformed payload
// will not become well-formed on retry, so every request is acknowledged;
// parse failures are only logged.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var envelope daraja.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("Discarding malformed callback payload",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		metrics.CallbacksReceived.WithLabelValues("malformed").Inc()
		h.acknowledge(w)
		return
	}

	cb := envelope.Body.STKCallback
	stored := h.store.Append(notificationFromCallback(&cb))

	result := "failed"
	if stored.Successful() {
		result = "success"
	}
	metrics.CallbacksReceived.WithLabelValues(result).Inc()

	h.logger.WithCheckoutID(cb.CheckoutRequestID).Info("Payment callback received",
		"result_code", cb.ResultCode,
		"result_desc", cb.ResultDesc,
		"receipt", stored.MpesaReceiptNumber,
		"amount", stored.Amount,
	)

	h.acknowledge(w)
}

// HandleTimeout handles POST /mpesa/timeout
func (h *CallbackHandler) HandleTimeout(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	h.logger.Warn("Timeout callback received", "payload", string(body))
	metrics.CallbacksReceived.WithLabelValues("timeout").Inc()
	h.acknowledge(w)
}

// acknowledge sends the acceptance body the gateway expects
func (h *CallbackHandler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ResultCode": 0,
		"ResultDesc": "Success",
	})
}

// notificationFromCallback maps callback metadata items onto a notification.
// Items arrive unordered and any may be absent; missing ones leave their
// field at the zero value.
func notificationFromCallback(cb *daraja.STKCallback) model.PaymentNotification {
	n := model.PaymentNotification{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	if amount, ok := cb.MetadataValue("Amount").(float64); ok {
		n.Amount = amount
	}
	if receipt, ok := cb.MetadataValue("MpesaReceiptNumber").(string); ok {
		n.MpesaReceiptNumber = receipt
	}
	n.TransactionDate = metadataString(cb.MetadataValue("TransactionDate"))
	n.PhoneNumber = metadataString(cb.MetadataValue("PhoneNumber"))

	return n
}

// metadataString renders a metadata value as text. Numeric items such as
// TransactionDate and PhoneNumber arrive as JSON numbers.
func metadataString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
