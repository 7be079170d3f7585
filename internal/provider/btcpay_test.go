package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"go.uber.org/zap"
)

type btcpayFixture struct {
	server        *httptest.Server
	invoiceCode   int
	invoiceNick   string
	invoiceAmount string
	checkoutLink  string
	fetchCalls    int
}

func newBTCPayFixture(test *testing.T) *btcpayFixture {
	test.Helper()
	fixture := &btcpayFixture{
		invoiceCode:   http.StatusOK,
		invoiceNick:   "Bob_1",
		invoiceAmount: "0.37",
		checkoutLink:  "https://btcpay.test/checkout/inv-1",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stores/store-1/invoices", func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "token key-1" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(writer).Encode(map[string]string{"checkoutLink": fixture.checkoutLink})
	})
	mux.HandleFunc("/api/v1/stores/store-1/invoices/", func(writer http.ResponseWriter, request *http.Request) {
		fixture.fetchCalls++
		if request.Header.Get("Authorization") != "token key-1" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fixture.invoiceCode != http.StatusOK {
			writer.WriteHeader(fixture.invoiceCode)
			return
		}
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"amount":   fixture.invoiceAmount,
			"metadata": map[string]string{"nick": fixture.invoiceNick},
		})
	})
	fixture.server = httptest.NewServer(mux)
	test.Cleanup(fixture.server.Close)
	return fixture
}

func (fixture *btcpayFixture) verifier() *BTCPay {
	return NewBTCPay(BTCPayConfig{
		BaseURL:     fixture.server.URL,
		StoreID:     "store-1",
		APIKey:      "key-1",
		RedirectURL: "https://donate.test/?paid=1",
	}, zap.NewNop())
}

func mustProviderNick(test *testing.T, raw string) donate.Nick {
	test.Helper()
	nick, err := donate.NewNick(raw)
	if err != nil {
		test.Fatalf("nick %q: %v", raw, err)
	}
	return nick
}

func mustPledge(test *testing.T, raw float64) donate.Amount {
	test.Helper()
	amount, err := donate.NewPledgeAmount(raw)
	if err != nil {
		test.Fatalf("pledge %v: %v", raw, err)
	}
	return amount
}

func TestBTCPayVerifyWebhookUsesRefetchedInvoice(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	verifier := fixture.verifier()

	// Webhook payload claims a wild amount; only the re-fetched invoice counts.
	body := []byte(`{"type":"InvoiceSettled","invoiceId":"inv-1","amount":"999999","metadata":{"nick":"Mallory"}}`)
	settlement, err := verifier.VerifyWebhook(context.Background(), body)
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if settlement.Nick.String() != "Bob_1" {
		test.Fatalf("expected re-fetched nick Bob_1, got %s", settlement.Nick)
	}
	if settlement.Amount.String() != "0.37" {
		test.Fatalf("expected re-fetched amount 0.37, got %s", settlement.Amount)
	}
	if fixture.fetchCalls != 1 {
		test.Fatalf("expected exactly one invoice fetch, got %d", fixture.fetchCalls)
	}
}

func TestBTCPayVerifyWebhookIgnoresOtherEventTypes(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	verifier := fixture.verifier()

	_, err := verifier.VerifyWebhook(context.Background(), []byte(`{"type":"InvoiceCreated","invoiceId":"inv-1"}`))
	if !errors.Is(err, ErrIgnored) {
		test.Fatalf("expected ErrIgnored, got %v", err)
	}
	if fixture.fetchCalls != 0 {
		test.Fatalf("ignored events must not trigger a fetch")
	}
}

func TestBTCPayVerifyWebhookMissingInvoiceID(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	verifier := fixture.verifier()

	_, err := verifier.VerifyWebhook(context.Background(), []byte(`{"type":"InvoiceSettled"}`))
	if !errors.Is(err, ErrIgnored) {
		test.Fatalf("expected ErrIgnored, got %v", err)
	}
}

func TestBTCPayVerifyWebhookFetchFailure(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	fixture.invoiceCode = http.StatusBadGateway
	verifier := fixture.verifier()

	_, err := verifier.VerifyWebhook(context.Background(), []byte(`{"type":"InvoiceSettled","invoiceId":"inv-1"}`))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		test.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestBTCPayVerifyWebhookMalformedInvoiceMetadata(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	fixture.invoiceNick = " !!! "
	verifier := fixture.verifier()

	_, err := verifier.VerifyWebhook(context.Background(), []byte(`{"type":"InvoiceSettled","invoiceId":"inv-1"}`))
	if !errors.Is(err, ErrMalformed) {
		test.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestBTCPayCreateInvoiceReturnsCheckoutURL(test *testing.T) {
	test.Parallel()
	fixture := newBTCPayFixture(test)
	verifier := fixture.verifier()

	checkoutURL, err := verifier.CreateInvoice(context.Background(), mustProviderNick(test, "Bob_1"), mustPledge(test, 25))
	if err != nil {
		test.Fatalf("create invoice: %v", err)
	}
	if !strings.HasPrefix(checkoutURL, "https://btcpay.test/checkout/") {
		test.Fatalf("unexpected checkout url %q", checkoutURL)
	}
}

func TestLocalVerifyStrictMode(test *testing.T) {
	test.Parallel()
	local := NewLocal()

	settlement, err := local.Verify("  Bob_1!  ", 25.9)
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if settlement.Nick.String() != "Bob_1" {
		test.Fatalf("expected Bob_1, got %s", settlement.Nick)
	}
	if settlement.Amount.String() != "25.00" {
		test.Fatalf("expected floored 25.00, got %s", settlement.Amount)
	}
	if settlement.Provider != ProviderLocal || settlement.EventID == "" {
		test.Fatalf("unexpected settlement attribution: %+v", settlement)
	}

	if _, err := local.Verify("@@@", 25); !errors.Is(err, ErrMalformed) {
		test.Fatalf("expected ErrMalformed for bad nick, got %v", err)
	}
	if _, err := local.Verify("Bob_1", 0.5); !errors.Is(err, ErrMalformed) {
		test.Fatalf("expected ErrMalformed for bad amount, got %v", err)
	}
	if _, err := local.Verify("Bob_1", 100001); !errors.Is(err, ErrMalformed) {
		test.Fatalf("expected ErrMalformed for oversize amount, got %v", err)
	}
}
