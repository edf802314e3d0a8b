package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/metrics"
	"daraja-mcp/pkg/logger"
)

const (
	authPath     = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// Daraja error code for a status query issued while the prompt
	// is still open on the customer's phone.
	processingErrorCode = "500.001.1001"

	// Token lifetime used when expires_in is missing or unparsable.
	// Daraja tokens last 3600s; the shortfall doubles as a safety margin.
	fallbackTokenLifetime = 3500 * time.Second

	timestampLayout = "20060102150405"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("msisdn", validateMSISDN)
}

func validateMSISDN(fl validator.FieldLevel) bool {
	_, ok := NormalizePhone(fl.Field().String())
	return ok
}

// Client talks to the Daraja STK push API. A single OAuth token is cached
// across calls and refreshed shortly before it expires; concurrent callers
// may race the refresh, at worst fetching one redundant token each.
type Client struct {
	httpClient  *http.Client
	config      *config.DarajaConfig
	baseURL     string
	callbackURL string
	logger      *logger.Logger

	authMu      sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// NewClient creates a new Daraja API client
func NewClient(cfg *config.DarajaConfig, callbackURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:      cfg,
		baseURL:     cfg.BaseURL(),
		callbackURL: callbackURL,
		logger:      log,
	}
}

// STKPush sends a payment prompt to the customer's phone. The result of
// the prompt arrives later on the callback URL; each call is a new
// upstream payment attempt, nothing is deduplicated here.
func (c *Client) STKPush(ctx context.Context, input STKPushInput) (*STKPushResponse, error) {
	if err := validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	// Guaranteed by the msisdn validation above.
	phone, _ := NormalizePhone(input.PhoneNumber)

	timestamp := time.Now().Format(timestampLayout)
	payload := &stkPushRequest{
		BusinessShortCode: c.config.Shortcode,
		Password:          c.stkPassword(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            input.Amount,
		PartyA:            phone,
		PartyB:            c.config.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  input.AccountReference,
		TransactionDesc:   input.TransactionDesc,
	}

	var result STKPushResponse
	if err := c.doRequest(ctx, stkPushPath, payload, &result); err != nil {
		metrics.STKPushes.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.ResponseCode != "0" {
		metrics.STKPushes.WithLabelValues("rejected").Inc()
		return nil, &GatewayError{
			StatusCode:  http.StatusOK,
			Code:        result.ResponseCode,
			Description: result.ResponseDescription,
		}
	}

	metrics.STKPushes.WithLabelValues("accepted").Inc()
	c.logger.WithCheckoutID(result.CheckoutRequestID).Info("STK push accepted",
		"merchant_request_id", result.MerchantRequestID,
		"phone", phone,
		"amount", input.Amount,
	)

	return &result, nil
}

// STKQuery asks Daraja for the outcome of a previously sent prompt.
// While the customer has not yet responded, Daraja answers with its
// "still processing" error; IsProcessing distinguishes that state.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, &ValidationError{Field: "checkout_request_id", Reason: "must not be empty"}
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := &stkQueryRequest{
		BusinessShortCode: c.config.Shortcode,
		Password:          c.stkPassword(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var result STKQueryResponse
	if err := c.doRequest(ctx, stkQueryPath, payload, &result); err != nil {
		if IsProcessing(err) {
			metrics.STKQueries.WithLabelValues("processing").Inc()
		} else {
			metrics.STKQueries.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.STKQueries.WithLabelValues("ok").Inc()
	return &result, nil
}

// stkPassword builds the per-request API password.
func (c *Client) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.config.Shortcode + c.config.Passkey + timestamp))
}

// token returns a cached access token, fetching a fresh one when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.authMu.Lock()
	valid := c.cachedToken != "" && time.Now().Before(c.tokenExpiry)
	token := c.cachedToken
	c.authMu.Unlock()

	if valid {
		return token, nil
	}

	auth, err := c.authorize(ctx)
	if err != nil {
		return "", err
	}

	lifetime := fallbackTokenLifetime
	if secs, convErr := strconv.Atoi(auth.ExpiresIn); convErr == nil && secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}

	buffer := time.Minute
	if lifetime <= buffer {
		buffer = lifetime / 2
	}
	expiresAt := time.Now().Add(lifetime - buffer)

	c.authMu.Lock()
	c.cachedToken = auth.AccessToken
	c.tokenExpiry = expiresAt
	c.authMu.Unlock()

	metrics.TokenRefreshes.Inc()
	c.logger.Debug("Daraja access token refreshed", "expires_at", expiresAt)

	return auth.AccessToken, nil
}

// authorize performs the client-credentials exchange.
func (c *Client) authorize(ctx context.Context) (*authResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+authPath, nil)
	if err != nil {
		return nil, err
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.config.ConsumerKey + ":" + c.config.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{Body: fmt.Sprintf("auth request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("read auth response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil || auth.AccessToken == "" {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &auth, nil
}

// invalidateToken drops the cached token so the next call re-authorizes.
func (c *Client) invalidateToken() {
	c.authMu.Lock()
	c.cachedToken = ""
	c.tokenExpiry = time.Time{}
	c.authMu.Unlock()
}

// doRequest posts payload to path with a bearer token and decodes the JSON
// response into out. A 401 on a business call means the cached token went
// stale server-side; it is refreshed and the request retried once.
func (c *Client) doRequest(ctx context.Context, path string, payload, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.post(ctx, path, token, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		c.invalidateToken()
		token, err = c.token(ctx)
		if err != nil {
			return err
		}
		status, body, err = c.post(ctx, path, token, payload)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return gatewayErrorFromBody(status, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &GatewayError{StatusCode: status, Description: fmt.Sprintf("malformed response body: %v", err)}
	}

	return nil
}

// post sends one JSON request. Only transport failures return an error;
// HTTP status handling belongs to the caller.
func (c *Client) post(ctx context.Context, path, token string, payload interface{}) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal daraja payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &GatewayError{Description: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &GatewayError{StatusCode: resp.StatusCode, Description: fmt.Sprintf("read response: %v", err)}
	}

	return resp.StatusCode, body, nil
}

// gatewayErrorFromBody maps a non-2xx Daraja response into a GatewayError,
// keeping the provider's own description verbatim.
func gatewayErrorFromBody(status int, body []byte) error {
	gw := &GatewayError{StatusCode: status, Description: strings.TrimSpace(string(body))}

	var failure gatewayFailure
	if err := json.Unmarshal(body, &failure); err == nil && failure.ErrorMessage != "" {
		gw.Code = failure.ErrorCode
		gw.Description = failure.ErrorMessage
	}
	gw.Processing = gw.Code == processingErrorCode || strings.Contains(gw.Description, processingErrorCode)

	return gw
}

// validationError converts a validator failure into the error taxonomy,
// naming the first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Tag() {
		case "required":
			return &ValidationError{Field: fieldName(f.Field()), Reason: "is required"}
		case "gt":
			return &ValidationError{Field: fieldName(f.Field()), Reason: "must be greater than " + f.Param()}
		case "max":
			return &ValidationError{Field: fieldName(f.Field()), Reason: "must be at most " + f.Param() + " characters"}
		case "msisdn":
			return &ValidationError{Field: fieldName(f.Field()), Reason: "expected 07XXXXXXXX, +254XXXXXXXXX or 254XXXXXXXXX"}
		default:
			return &ValidationError{Field: fieldName(f.Field()), Reason: "failed " + f.Tag() + " validation"}
		}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

// fieldName maps struct field names onto their wire spelling.
func fieldName(structField string) string {
	switch structField {
	case "PhoneNumber":
		return "phone_number"
	case "Amount":
		return "amount"
	case "AccountReference":
		return "account_reference"
	case "TransactionDesc":
		return "transaction_desc"
	default:
		return structField
	}
}
