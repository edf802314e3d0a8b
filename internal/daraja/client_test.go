package daraja

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"daraja-mcp/internal/config"
	"daraja-mcp/pkg/logger"
)

// fakeGateway stands in for the Daraja API. Zero values serve the happy
// path; individual fields steer error scenarios.
type fakeGateway struct {
	mu         sync.Mutex
	authCalls  int
	pushCalls  int
	queryCalls int

	lastAuthHeader   string
	lastBearer       string
	lastPush         stkPushRequest
	authStatus       int
	expiresIn        string
	pushStatus       int
	pushBody         interface{}
	queryStatus      int
	queryBody        interface{}
	unauthorizedLeft int
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch r.URL.Path {
	case "/oauth/v1/generate":
		g.authCalls++
		g.lastAuthHeader = r.Header.Get("Authorization")

		if g.authStatus != 0 && g.authStatus != http.StatusOK {
			w.WriteHeader(g.authStatus)
			fmt.Fprint(w, `{"errorMessage":"Invalid Credentials"}`)
			return
		}

		expires := g.expiresIn
		if expires == "" {
			expires = "3599"
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": fmt.Sprintf("token-%d", g.authCalls),
			"expires_in":   expires,
		})

	case "/mpesa/stkpush/v1/processrequest":
		g.pushCalls++
		g.lastBearer = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&g.lastPush)

		if g.unauthorizedLeft > 0 {
			g.unauthorizedLeft--
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		status := g.pushStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := g.pushBody
		if body == nil {
			body = STKPushResponse{
				MerchantRequestID:   "29115-34620561-1",
				CheckoutRequestID:   "ws_CO_123",
				ResponseCode:        "0",
				ResponseDescription: "Success. Request accepted for processing",
				CustomerMessage:     "Success. Request accepted for processing",
			}
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)

	case "/mpesa/stkpushquery/v1/query":
		g.queryCalls++
		g.lastBearer = r.Header.Get("Authorization")

		status := g.queryStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := g.queryBody
		if body == nil {
			body = STKQueryResponse{
				MerchantRequestID: "29115-34620561-1",
				CheckoutRequestID: "ws_CO_123",
				ResponseCode:      "0",
				ResultCode:        "0",
				ResultDesc:        "The service request is processed successfully.",
			}
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, gw *fakeGateway) *Client {
	t.Helper()

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	cfg := &config.DarajaConfig{
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		Shortcode:       "174379",
		Passkey:         "passkey",
		Environment:     "sandbox",
		Timeout:         5 * time.Second,
		BaseURLOverride: srv.URL,
	}

	return NewClient(cfg, "https://example.com/mpesa/callback", logger.New("ERROR"))
}

func pushInput() STKPushInput {
	return STKPushInput{
		PhoneNumber:      "0712345678",
		Amount:           500,
		AccountReference: "INV-001",
		TransactionDesc:  "Test payment",
	}
}

func TestSTKPushSuccess(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	result, err := client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)
	require.Equal(t, "ws_CO_123", result.CheckoutRequestID)
	require.Equal(t, "29115-34620561-1", result.MerchantRequestID)
	require.Equal(t, "0", result.ResponseCode)

	require.Equal(t, 1, gw.pushCalls)
	require.Equal(t, "174379", gw.lastPush.BusinessShortCode)
	require.Equal(t, "CustomerPayBillOnline", gw.lastPush.TransactionType)
	require.Equal(t, int64(500), gw.lastPush.Amount)
	require.Equal(t, "254712345678", gw.lastPush.PartyA)
	require.Equal(t, "174379", gw.lastPush.PartyB)
	require.Equal(t, "254712345678", gw.lastPush.PhoneNumber)
	require.Equal(t, "https://example.com/mpesa/callback", gw.lastPush.CallBackURL)
	require.Equal(t, "INV-001", gw.lastPush.AccountReference)
	require.Equal(t, "Test payment", gw.lastPush.TransactionDesc)

	// Password is base64(shortcode + passkey + timestamp).
	decoded, err := base64.StdEncoding.DecodeString(gw.lastPush.Password)
	require.NoError(t, err)
	require.Equal(t, "174379passkey"+gw.lastPush.Timestamp, string(decoded))
	require.Len(t, gw.lastPush.Timestamp, 14)
}

func TestSTKPushSendsBasicAuthOnTokenExchange(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
	require.Equal(t, expected, gw.lastAuthHeader)
	require.Equal(t, "Bearer token-1", gw.lastBearer)
}

func TestSTKPushRejectsInvalidPhoneBeforeAnyRequest(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	input := pushInput()
	input.PhoneNumber = "12345"

	_, err := client.STKPush(context.Background(), input)
	require.Error(t, err)
	require.True(t, IsValidation(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "phone_number", verr.Field)

	require.Equal(t, 0, gw.authCalls)
	require.Equal(t, 0, gw.pushCalls)
}

func TestSTKPushRejectsNonPositiveAmount(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	input := pushInput()
	input.Amount = 0

	_, err := client.STKPush(context.Background(), input)
	require.True(t, IsValidation(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "amount", verr.Field)
	require.Equal(t, 0, gw.pushCalls)
}

func TestSTKPushRejectsOverlongReference(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	input := pushInput()
	input.AccountReference = "INV-2024-00017"

	_, err := client.STKPush(context.Background(), input)
	require.True(t, IsValidation(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "account_reference", verr.Field)
	require.Equal(t, "must be at most 12 characters", verr.Reason)
	require.Equal(t, 0, gw.pushCalls)
}

func TestSTKPushGatewayRejection(t *testing.T) {
	gw := &fakeGateway{
		pushBody: STKPushResponse{
			ResponseCode:        "1",
			ResponseDescription: "Unable to lock subscriber",
		},
	}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.Error(t, err)
	require.True(t, IsGateway(err))
	require.False(t, IsProcessing(err))

	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, "1", gerr.Code)
	require.Equal(t, "Unable to lock subscriber", gerr.Description)
}

func TestSTKPushUpstreamErrorBody(t *testing.T) {
	gw := &fakeGateway{
		pushStatus: http.StatusInternalServerError,
		pushBody: gatewayFailure{
			RequestID:    "16813-15-1",
			ErrorCode:    "404.001.03",
			ErrorMessage: "Invalid Access Token",
		},
	}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.True(t, IsGateway(err))

	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, http.StatusInternalServerError, gerr.StatusCode)
	require.Equal(t, "404.001.03", gerr.Code)
	require.Equal(t, "Invalid Access Token", gerr.Description)
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)
	_, err = client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)

	require.Equal(t, 1, gw.authCalls)
	require.Equal(t, 2, gw.pushCalls)
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)
	require.Equal(t, 1, gw.authCalls)

	client.authMu.Lock()
	client.tokenExpiry = time.Now().Add(-time.Second)
	client.authMu.Unlock()

	_, err = client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)
	require.Equal(t, 2, gw.authCalls)
	require.Equal(t, "Bearer token-2", gw.lastBearer)
}

func TestUnauthorizedTriggersSingleRefreshAndRetry(t *testing.T) {
	gw := &fakeGateway{unauthorizedLeft: 1}
	client := newTestClient(t, gw)

	result, err := client.STKPush(context.Background(), pushInput())
	require.NoError(t, err)
	require.Equal(t, "ws_CO_123", result.CheckoutRequestID)

	require.Equal(t, 2, gw.authCalls)
	require.Equal(t, 2, gw.pushCalls)
	require.Equal(t, "Bearer token-2", gw.lastBearer)
}

func TestPersistentUnauthorizedSurfacesGatewayError(t *testing.T) {
	gw := &fakeGateway{unauthorizedLeft: 2}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.Error(t, err)
	require.True(t, IsGateway(err))

	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, http.StatusUnauthorized, gerr.StatusCode)
	require.Equal(t, 2, gw.pushCalls)
}

func TestAuthorizationFailure(t *testing.T) {
	gw := &fakeGateway{authStatus: http.StatusBadRequest}
	client := newTestClient(t, gw)

	_, err := client.STKPush(context.Background(), pushInput())
	require.Error(t, err)
	require.True(t, IsAuthentication(err))

	var aerr *AuthenticationError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, http.StatusBadRequest, aerr.StatusCode)
	require.Contains(t, aerr.Body, "Invalid Credentials")
	require.Equal(t, 0, gw.pushCalls)
}

func TestTransportTimeoutSurfacesGatewayError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "token-1",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.DarajaConfig{
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		Shortcode:       "174379",
		Passkey:         "passkey",
		Environment:     "sandbox",
		Timeout:         100 * time.Millisecond,
		BaseURLOverride: srv.URL,
	}
	client := NewClient(cfg, "https://example.com/mpesa/callback", logger.New("ERROR"))

	_, err := client.STKPush(context.Background(), pushInput())
	require.Error(t, err)
	require.True(t, IsGateway(err))

	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Contains(t, gerr.Description, "request failed")
}

func TestSTKQuerySuccess(t *testing.T) {
	gw := &fakeGateway{
		queryBody: STKQueryResponse{
			CheckoutRequestID: "ws_CO_123",
			ResponseCode:      "0",
			ResultCode:        "1032",
			ResultDesc:        "Request cancelled by user",
		},
	}
	client := newTestClient(t, gw)

	result, err := client.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, "1032", result.ResultCode)
	require.Equal(t, "Request cancelled by user", result.ResultDesc)
	require.Equal(t, 1, gw.queryCalls)
}

func TestSTKQueryStillProcessing(t *testing.T) {
	gw := &fakeGateway{
		queryStatus: http.StatusInternalServerError,
		queryBody: gatewayFailure{
			RequestID:    "16813-15-1",
			ErrorCode:    "500.001.1001",
			ErrorMessage: "The transaction is being processed",
		},
	}
	client := newTestClient(t, gw)

	_, err := client.STKQuery(context.Background(), "ws_CO_123")
	require.Error(t, err)
	require.True(t, IsProcessing(err))
	require.True(t, IsGateway(err))
}

func TestSTKQueryRequiresCheckoutRequestID(t *testing.T) {
	gw := &fakeGateway{}
	client := newTestClient(t, gw)

	_, err := client.STKQuery(context.Background(), "  ")
	require.True(t, IsValidation(err))
	require.Equal(t, 0, gw.queryCalls)
	require.Equal(t, 0, gw.authCalls)
}

func TestGatewayErrorFromBodyKeepsRawBodyWhenNotJSON(t *testing.T) {
	err := gatewayErrorFromBody(http.StatusBadGateway, []byte("  upstream exploded  "))

	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, http.StatusBadGateway, gerr.StatusCode)
	require.Equal(t, "upstream exploded", gerr.Description)
	require.Empty(t, gerr.Code)
	require.False(t, gerr.Processing)
}

func TestGatewayErrorFromBodyDetectsProcessingInDescription(t *testing.T) {
	body := []byte(`{"requestId":"1","errorCode":"500.001","errorMessage":"error 500.001.1001 still processing"}`)
	err := gatewayErrorFromBody(http.StatusInternalServerError, body)
	require.True(t, IsProcessing(err))
	require.True(t, strings.Contains(err.Error(), "500.001.1001"))
}
