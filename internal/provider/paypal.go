package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"go.uber.org/zap"
)

const (
	paypalEventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	paypalVerificationSuccess   = "SUCCESS"

	paypalPathToken       = "/v1/oauth2/token"
	paypalPathVerify      = "/v1/notifications/verify-webhook-signature"
	paypalPathOrders      = "/v2/checkout/orders"
	paypalLinkRelApprove  = "approve"
	paypalIntentCapture   = "CAPTURE"
	paypalUserActionPay   = "PAY_NOW"
	defaultRequestTimeout = 10 * time.Second
)

// Transport headers PayPal signs every webhook delivery with. All five must
// be present for the verification call.
var paypalSignatureHeaders = []string{
	"paypal-auth-algo",
	"paypal-cert-url",
	"paypal-transmission-id",
	"paypal-transmission-sig",
	"paypal-transmission-time",
}

// PayPalConfig carries the provider endpoint and credentials.
type PayPalConfig struct {
	BaseURL   string
	ClientID  string
	Secret    string
	WebhookID string
	BrandName string
	ReturnURL string
	CancelURL string
}

// PayPal verifies inbound PayPal webhooks against the provider's
// signature-verification endpoint and creates checkout orders.
type PayPal struct {
	cfg        PayPalConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// PayPalOption configures a PayPal verifier.
type PayPalOption func(*PayPal)

// WithPayPalHTTPClient overrides the HTTP client (tests).
func WithPayPalHTTPClient(client *http.Client) PayPalOption {
	return func(paypal *PayPal) {
		paypal.httpClient = client
	}
}

// NewPayPal wires a PayPal verifier.
func NewPayPal(cfg PayPalConfig, logger *zap.Logger, options ...PayPalOption) *PayPal {
	paypal := &PayPal{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
	for _, option := range options {
		if option != nil {
			option(paypal)
		}
	}
	return paypal
}

type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		CustomID string `json:"custom_id"`
		Amount   struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhook authenticates an inbound webhook delivery and extracts the
// settlement it reports. Any verification failure, transport error, or
// non-SUCCESS verdict is ErrUnauthenticated; authentic non-capture events are
// ErrIgnored.
func (paypal *PayPal) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (Settlement, error) {
	verifyRequest := paypalVerifyRequest{
		AuthAlgo:         headers.Get(paypalSignatureHeaders[0]),
		CertURL:          headers.Get(paypalSignatureHeaders[1]),
		TransmissionID:   headers.Get(paypalSignatureHeaders[2]),
		TransmissionSig:  headers.Get(paypalSignatureHeaders[3]),
		TransmissionTime: headers.Get(paypalSignatureHeaders[4]),
		WebhookID:        paypal.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(body),
	}
	for _, headerName := range paypalSignatureHeaders {
		if strings.TrimSpace(headers.Get(headerName)) == "" {
			return Settlement{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, headerName)
		}
	}
	if !json.Valid(body) {
		return Settlement{}, fmt.Errorf("%w: body is not json", ErrMalformed)
	}
	token, err := paypal.accessToken(ctx)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: token fetch: %v", ErrUnauthenticated, err)
	}
	var verdict paypalVerifyResponse
	if err := paypal.postJSON(ctx, paypalPathVerify, token, verifyRequest, &verdict); err != nil {
		return Settlement{}, fmt.Errorf("%w: verification call: %v", ErrUnauthenticated, err)
	}
	if verdict.VerificationStatus != paypalVerificationSuccess {
		return Settlement{}, fmt.Errorf("%w: verification status %q", ErrUnauthenticated, verdict.VerificationStatus)
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Settlement{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if event.EventType != paypalEventCaptureCompleted {
		return Settlement{}, fmt.Errorf("%w: event type %q", ErrIgnored, event.EventType)
	}
	nick, err := donate.NewNick(event.Resource.CustomID)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: custom_id: %v", ErrMalformed, err)
	}
	amount, err := donate.ParseSettledAmount(event.Resource.Amount.Value)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: amount: %v", ErrMalformed, err)
	}
	return Settlement{
		Provider: ProviderPayPal,
		EventID:  event.ID,
		Nick:     nick,
		Amount:   amount,
	}, nil
}

type paypalOrderRequest struct {
	Intent             string                   `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit     `json:"purchase_units"`
	ApplicationContext paypalApplicationContext `json:"application_context"`
}

type paypalPurchaseUnit struct {
	Amount   paypalOrderAmount `json:"amount"`
	CustomID string            `json:"custom_id"`
}

type paypalOrderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalApplicationContext struct {
	BrandName  string `json:"brand_name"`
	UserAction string `json:"user_action"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
}

type paypalOrderResponse struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// CreateOrder opens a capture order for the nick and returns the approval URL
// the donor is redirected to.
func (paypal *PayPal) CreateOrder(ctx context.Context, nick donate.Nick, amount donate.Amount) (string, error) {
	token, err := paypal.accessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: token fetch: %v", ErrUpstreamUnavailable, err)
	}
	orderRequest := paypalOrderRequest{
		Intent: paypalIntentCapture,
		PurchaseUnits: []paypalPurchaseUnit{{
			Amount:   paypalOrderAmount{CurrencyCode: currencyUSD, Value: amount.String()},
			CustomID: nick.String(),
		}},
		ApplicationContext: paypalApplicationContext{
			BrandName:  paypal.cfg.BrandName,
			UserAction: paypalUserActionPay,
			ReturnURL:  paypal.cfg.ReturnURL,
			CancelURL:  paypal.cfg.CancelURL,
		},
	}
	var order paypalOrderResponse
	if err := paypal.postJSON(ctx, paypalPathOrders, token, orderRequest, &order); err != nil {
		return "", fmt.Errorf("%w: create order: %v", ErrUpstreamUnavailable, err)
	}
	for _, link := range order.Links {
		if link.Rel == paypalLinkRelApprove {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("%w: order has no approve link", ErrUpstreamUnavailable)
}

func (paypal *PayPal) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, paypal.cfg.BaseURL+paypalPathToken, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	request.SetBasicAuth(paypal.cfg.ClientID, paypal.cfg.Secret)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response, err := paypal.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned %d", response.StatusCode)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}
	return payload.AccessToken, nil
}

func (paypal *PayPal) postJSON(ctx context.Context, path string, token string, requestBody any, responseBody any) error {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, paypal.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	response, err := paypal.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))
		paypal.logger.Warn("paypal call failed",
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.ByteString("body", detail),
		)
		return fmt.Errorf("%s returned %d", path, response.StatusCode)
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
