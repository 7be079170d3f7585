package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	btcpayEventInvoiceSettled = "InvoiceSettled"
	btcpayOrderIDPrefix       = "donate"
)

// BTCPayConfig carries the store endpoint and the server-held API credential.
type BTCPayConfig struct {
	BaseURL     string
	StoreID     string
	APIKey      string
	RedirectURL string
}

// BTCPay verifies settlement webhooks from a BTCPay Server store and creates
// checkout invoices. The webhook payload itself is attacker-reachable, so the
// authoritative invoice record is always re-fetched from the management API
// before its metadata or amount is trusted.
type BTCPay struct {
	cfg        BTCPayConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// BTCPayOption configures a BTCPay verifier.
type BTCPayOption func(*BTCPay)

// WithBTCPayHTTPClient overrides the HTTP client (tests).
func WithBTCPayHTTPClient(client *http.Client) BTCPayOption {
	return func(btcpay *BTCPay) {
		btcpay.httpClient = client
	}
}

// NewBTCPay wires a BTCPay verifier.
func NewBTCPay(cfg BTCPayConfig, logger *zap.Logger, options ...BTCPayOption) *BTCPay {
	btcpay := &BTCPay{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
	for _, option := range options {
		if option != nil {
			option(btcpay)
		}
	}
	return btcpay
}

type btcpayWebhookEvent struct {
	Type      string `json:"type"`
	InvoiceID string `json:"invoiceId"`
}

type btcpayInvoice struct {
	Amount   string `json:"amount"`
	Metadata struct {
		Nick string `json:"nick"`
	} `json:"metadata"`
}

// VerifyWebhook handles an inbound settlement notification. Only
// InvoiceSettled events settle; everything else is ErrIgnored. The invoice is
// re-fetched before anything in it is trusted, and a failed re-fetch is
// ErrUpstreamUnavailable so the provider redelivers.
func (btcpay *BTCPay) VerifyWebhook(ctx context.Context, body []byte) (Settlement, error) {
	var event btcpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Settlement{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if event.Type != btcpayEventInvoiceSettled {
		return Settlement{}, fmt.Errorf("%w: event type %q", ErrIgnored, event.Type)
	}
	if strings.TrimSpace(event.InvoiceID) == "" {
		return Settlement{}, fmt.Errorf("%w: missing invoiceId", ErrIgnored)
	}
	invoice, err := btcpay.fetchInvoice(ctx, event.InvoiceID)
	if err != nil {
		return Settlement{}, err
	}
	nick, err := donate.NewNick(invoice.Metadata.Nick)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: invoice metadata nick: %v", ErrMalformed, err)
	}
	amount, err := donate.ParseSettledAmount(invoice.Amount)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: invoice amount: %v", ErrMalformed, err)
	}
	return Settlement{
		Provider: ProviderBTCPay,
		EventID:  event.InvoiceID,
		Nick:     nick,
		Amount:   amount,
	}, nil
}

type btcpayInvoiceRequest struct {
	Amount   string                `json:"amount"`
	Currency string                `json:"currency"`
	Metadata btcpayInvoiceMetadata `json:"metadata"`
	Checkout btcpayInvoiceCheckout `json:"checkout"`
}

type btcpayInvoiceMetadata struct {
	Nick    string `json:"nick"`
	OrderID string `json:"orderId"`
}

type btcpayInvoiceCheckout struct {
	RedirectURL           string `json:"redirectURL"`
	RedirectAutomatically bool   `json:"redirectAutomatically"`
}

type btcpayInvoiceResponse struct {
	CheckoutLink string `json:"checkoutLink"`
}

// CreateInvoice opens a checkout invoice carrying the nick in its metadata
// and returns the checkout URL.
func (btcpay *BTCPay) CreateInvoice(ctx context.Context, nick donate.Nick, amount donate.Amount) (string, error) {
	invoiceRequest := btcpayInvoiceRequest{
		Amount:   amount.String(),
		Currency: currencyUSD,
		Metadata: btcpayInvoiceMetadata{
			Nick:    nick.String(),
			OrderID: fmt.Sprintf("%s-%s-%s", btcpayOrderIDPrefix, nick.String(), uuid.NewString()),
		},
		Checkout: btcpayInvoiceCheckout{
			RedirectURL:           btcpay.cfg.RedirectURL,
			RedirectAutomatically: true,
		},
	}
	encoded, err := json.Marshal(invoiceRequest)
	if err != nil {
		return "", fmt.Errorf("%w: encode invoice: %v", ErrUpstreamUnavailable, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, btcpay.invoicesURL(), bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	request.Header.Set("Authorization", "token "+btcpay.cfg.APIKey)
	request.Header.Set("Content-Type", "application/json")
	response, err := btcpay.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		btcpay.logWireFailure("create invoice", response)
		return "", fmt.Errorf("%w: invoice endpoint returned %d", ErrUpstreamUnavailable, response.StatusCode)
	}
	var invoice btcpayInvoiceResponse
	if err := json.NewDecoder(response.Body).Decode(&invoice); err != nil {
		return "", fmt.Errorf("%w: decode invoice: %v", ErrUpstreamUnavailable, err)
	}
	if invoice.CheckoutLink == "" {
		return "", fmt.Errorf("%w: invoice has no checkout link", ErrUpstreamUnavailable)
	}
	return invoice.CheckoutLink, nil
}

func (btcpay *BTCPay) fetchInvoice(ctx context.Context, invoiceID string) (btcpayInvoice, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, btcpay.invoicesURL()+"/"+invoiceID, nil)
	if err != nil {
		return btcpayInvoice{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	request.Header.Set("Authorization", "token "+btcpay.cfg.APIKey)
	response, err := btcpay.httpClient.Do(request)
	if err != nil {
		return btcpayInvoice{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		btcpay.logWireFailure("fetch invoice", response)
		return btcpayInvoice{}, fmt.Errorf("%w: invoice fetch returned %d", ErrUpstreamUnavailable, response.StatusCode)
	}
	var invoice btcpayInvoice
	if err := json.NewDecoder(response.Body).Decode(&invoice); err != nil {
		return btcpayInvoice{}, fmt.Errorf("%w: decode invoice: %v", ErrUpstreamUnavailable, err)
	}
	return invoice, nil
}

func (btcpay *BTCPay) invoicesURL() string {
	return fmt.Sprintf("%s/api/v1/stores/%s/invoices", btcpay.cfg.BaseURL, btcpay.cfg.StoreID)
}

func (btcpay *BTCPay) logWireFailure(call string, response *http.Response) {
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))
	btcpay.logger.Warn("btcpay call failed",
		zap.String("call", call),
		zap.Int("status", response.StatusCode),
		zap.ByteString("body", detail),
	)
}
