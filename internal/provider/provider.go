// Package provider authenticates inbound payment-provider events and turns
// them into normalized settlements. Each variant fails closed: an event that
// cannot be authenticated never reaches the board.
package provider

import (
	"errors"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
)

// Verification failure taxonomy. Ignored is not a failure for the caller: the
// event was authentic and well-formed but is not a settlement.
var (
	ErrUnauthenticated     = errors.New("unauthenticated event")
	ErrMalformed           = errors.New("malformed event")
	ErrIgnored             = errors.New("ignored event")
	ErrUpstreamUnavailable = errors.New("provider unavailable")
)

// Settlement is a verified, normalized (identity, amount) pair ready for
// crediting.
type Settlement struct {
	Provider string
	EventID  string
	Nick     donate.Nick
	Amount   donate.Amount
}

const (
	ProviderPayPal = "paypal"
	ProviderBTCPay = "btcpay"
	ProviderLocal  = "mock"

	currencyUSD = "USD"
)
