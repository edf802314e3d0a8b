package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/metrics"
	"daraja-mcp/internal/model"
	"daraja-mcp/internal/store"
	"daraja-mcp/pkg/logger"
)

// ErrUnknownTool marks a tools/call naming a tool this server does not have.
var ErrUnknownTool = errors.New("unknown tool")

// ToolHandler executes tool calls against the Daraja client and the
// notification store. The HTTP bridge dispatches into the same handler,
// so both surfaces stay in lockstep.
type ToolHandler struct {
	client *daraja.Client
	store  *store.NotificationStore
	config *config.Config
	logger *logger.Logger

	// healthClient probes the local callback server for get_callback_status.
	healthClient *http.Client
}

// NewToolHandler creates a new tool handler
func NewToolHandler(client *daraja.Client, st *store.NotificationStore, cfg *config.Config, log *logger.Logger) *ToolHandler {
	return &ToolHandler{
		client:       client,
		store:        st,
		config:       cfg,
		logger:       log,
		healthClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// Handle dispatches a tool call to the appropriate handler
func (h *ToolHandler) Handle(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	text, err := h.dispatch(ctx, name, args)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		return "", err
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return text, nil
}

func (h *ToolHandler) dispatch(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	switch name {
	case "stk_push":
		return h.handleSTKPush(ctx, args)
	case "stk_query":
		return h.handleSTKQuery(ctx, args)
	case "get_recent_payments":
		return h.handleRecentPayments(args)
	case "get_payment_details":
		return h.handlePaymentDetails(args)
	case "mark_payment_read":
		return h.handleMarkRead(args)
	case "get_notification_summary":
		return h.handleSummary()
	case "get_callback_status":
		return h.handleCallbackStatus(ctx)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (h *ToolHandler) handleSTKPush(ctx context.Context, args map[string]interface{}) (string, error) {
	phone, _ := args["phone_number"].(string)
	reference, _ := args["account_reference"].(string)
	description, _ := args["transaction_desc"].(string)

	amount, err := integerArg(args, "amount")
	if err != nil {
		return "", err
	}

	result, err := h.client.STKPush(ctx, daraja.STKPushInput{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: reference,
		TransactionDesc:  description,
	})
	if err != nil {
		return "", fmt.Errorf("initiating STK push: %w", err)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}

	text := string(body) +
		"\n\n✅ Payment request sent successfully!\n" +
		"CheckoutRequestID: " + result.CheckoutRequestID + "\n\n" +
		"Waiting for customer to complete payment. You'll be notified automatically when payment is received."

	return text, nil
}

func (h *ToolHandler) handleSTKQuery(ctx context.Context, args map[string]interface{}) (string, error) {
	checkoutID, _ := args["checkout_request_id"].(string)

	result, err := h.client.STKQuery(ctx, checkoutID)
	if err != nil {
		// Not an outcome yet: the customer still has the prompt open.
		if daraja.IsProcessing(err) {
			return "⏳ The transaction is still being processed. The customer has not completed the prompt yet; query again shortly.", nil
		}
		return "", fmt.Errorf("querying STK status: %w", err)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (h *ToolHandler) handleRecentPayments(args map[string]interface{}) (string, error) {
	limit := store.DefaultLimit
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	payments := h.store.Recent(limit)
	if len(payments) == 0 {
		return "No payments received yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Recent Payments (%d total, %d unread)\n\n", len(payments), h.store.UnreadCount())

	for i := range payments {
		p := &payments[i]

		icon := "✅"
		if !p.Read {
			icon = "🆕"
		}

		if p.Successful() {
			fmt.Fprintf(&b, "%s SUCCESSFUL PAYMENT\n", icon)
			fmt.Fprintf(&b, "   Amount: KES %s\n", orNA(formatAmount(p.Amount)))
			fmt.Fprintf(&b, "   Receipt: %s\n", orNA(p.MpesaReceiptNumber))
			fmt.Fprintf(&b, "   Phone: %s\n", orNA(p.PhoneNumber))
			fmt.Fprintf(&b, "   Date: %s\n", orNA(p.TransactionDate))
		} else {
			fmt.Fprintf(&b, "%s FAILED/CANCELLED\n", icon)
			fmt.Fprintf(&b, "   Reason: %s\n", orNA(p.ResultDesc))
		}

		fmt.Fprintf(&b, "   CheckoutRequestID: %s\n", orNA(p.CheckoutRequestID))
		fmt.Fprintf(&b, "   Received: %s\n\n", p.ReceivedAt.Format(time.RFC3339))
	}

	return b.String(), nil
}

func (h *ToolHandler) handlePaymentDetails(args map[string]interface{}) (string, error) {
	checkoutID, _ := args["checkout_request_id"].(string)
	receipt, _ := args["mpesa_receipt"].(string)

	var (
		payment model.PaymentNotification
		found   bool
	)
	switch {
	case checkoutID != "":
		payment, found = h.store.ByCheckoutID(checkoutID)
	case receipt != "":
		payment, found = h.store.ByReceipt(receipt)
	}

	if !found {
		return "Payment not found.", nil
	}

	body, err := json.MarshalIndent(payment, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (h *ToolHandler) handleMarkRead(args map[string]interface{}) (string, error) {
	checkoutID, _ := args["checkout_request_id"].(string)
	if checkoutID == "" {
		return "", &daraja.ValidationError{Field: "checkout_request_id", Reason: "is required"}
	}

	if h.store.MarkRead(checkoutID) {
		return fmt.Sprintf("✅ Marked payment %s as read.", checkoutID), nil
	}
	return fmt.Sprintf("❌ Payment %s not found.", checkoutID), nil
}

func (h *ToolHandler) handleSummary() (string, error) {
	summary := h.store.Summary()
	summary.CallbackURL = h.config.CallbackURL()

	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (h *ToolHandler) handleCallbackStatus(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://localhost:%s/health", h.config.Server.Port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := h.healthClient.Do(req)
	if err != nil {
		return fmt.Sprintf("❌ Callback server issue: %v", err), nil
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Sprintf("❌ Callback server issue: %v", err), nil
	}

	body, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		return "", err
	}

	return "✅ Callback server is running!\n\n" + string(body) +
		"\n\nMake sure this URL is accessible from Safaricom's servers.", nil
}

// ReadResource renders a resource URI as JSON text.
func (h *ToolHandler) ReadResource(uri string) string {
	switch uri {
	case "payment://recent":
		payments := h.store.Recent(20)
		return marshalIndent(map[string]interface{}{
			"total":    len(payments),
			"unread":   h.store.UnreadCount(),
			"payments": payments,
		})
	case "payment://unread":
		unread := h.store.Unread()
		return marshalIndent(map[string]interface{}{
			"total":    len(unread),
			"payments": unread,
		})
	default:
		return marshalIndent(map[string]interface{}{"error": "Unknown resource"})
	}
}

func marshalIndent(v interface{}) string {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(body)
}

// integerArg reads a whole-number argument. JSON numbers decode as float64,
// so fractional values are rejected here rather than silently truncated.
func integerArg(args map[string]interface{}, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, &daraja.ValidationError{Field: key, Reason: "is required"}
	}

	n, ok := v.(float64)
	if !ok {
		return 0, &daraja.ValidationError{Field: key, Reason: "must be an integer"}
	}
	if n != math.Trunc(n) {
		return 0, &daraja.ValidationError{Field: key, Reason: "must be a whole number"}
	}

	return int64(n), nil
}

func formatAmount(amount float64) string {
	if amount == 0 {
		return ""
	}
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// resourceDefinitions lists the MCP resources this server exposes.
func resourceDefinitions() []Resource {
	return []Resource{
		{
			URI:         "payment://recent",
			Name:        "Recent Payments",
			MimeType:    "application/json",
			Description: "Recent M-PESA payment notifications",
		},
		{
			URI:         "payment://unread",
			Name:        "Unread Notifications",
			MimeType:    "application/json",
			Description: "Unread payment notifications",
		},
	}
}

// ToolDefinitions returns the MCP tool definitions
func ToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "stk_push",
			Description: "Initiate an STK Push (Lipa Na M-PESA) payment request. Callback notifications will be received automatically.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"phone_number": map[string]interface{}{
						"type":        "string",
						"description": "Customer phone number in format 254XXXXXXXXX or 07XXXXXXXX",
					},
					"amount": map[string]interface{}{
						"type":        "integer",
						"description": "Amount to charge in KES (must be at least 1)",
					},
					"account_reference": map[string]interface{}{
						"type":        "string",
						"description": "Account reference (e.g., invoice number, order ID)",
					},
					"transaction_desc": map[string]interface{}{
						"type":        "string",
						"description": "Description of the transaction",
					},
				},
				"required": []string{"phone_number", "amount", "account_reference", "transaction_desc"},
			},
		},
		{
			Name:        "stk_query",
			Description: "Check the status of an STK Push transaction using the CheckoutRequestID",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"checkout_request_id": map[string]interface{}{
						"type":        "string",
						"description": "The CheckoutRequestID returned from the STK Push request",
					},
				},
				"required": []string{"checkout_request_id"},
			},
		},
		{
			Name:        "get_recent_payments",
			Description: "Get recent payment notifications received via callback",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Number of recent payments to retrieve (default: 10, max: 50)",
						"default":     10,
					},
				},
			},
		},
		{
			Name:        "get_payment_details",
			Description: "Get details of a specific payment by CheckoutRequestID or M-PESA receipt number",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"checkout_request_id": map[string]interface{}{
						"type":        "string",
						"description": "CheckoutRequestID to look up",
					},
					"mpesa_receipt": map[string]interface{}{
						"type":        "string",
						"description": "M-PESA receipt number to look up",
					},
				},
			},
		},
		{
			Name:        "mark_payment_read",
			Description: "Mark a payment notification as read",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"checkout_request_id": map[string]interface{}{
						"type":        "string",
						"description": "CheckoutRequestID to mark as read",
					},
				},
				"required": []string{"checkout_request_id"},
			},
		},
		{
			Name:        "get_notification_summary",
			Description: "Get summary of payment notifications (total, unread count, etc.)",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "get_callback_status",
			Description: "Check if the callback server is running and get its URL",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
