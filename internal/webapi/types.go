package webapi

import "encoding/json"

// donationRequest is the body of every donation-initiation endpoint.
type donationRequest struct {
	Nick   string  `json:"nick"`
	Amount float64 `json:"amount"`
}

// boardRowPayload mirrors one leaderboard line for the UI.
type boardRowPayload struct {
	Nick  string      `json:"nick"`
	Total json.Number `json:"total"`
}

// leaderboardEnvelope wraps the ranked board.
type leaderboardEnvelope struct {
	Top []boardRowPayload `json:"top"`
}

// mockDonationEnvelope confirms a demo-mode credit.
type mockDonationEnvelope struct {
	OK    bool        `json:"ok"`
	Nick  string      `json:"nick"`
	Total json.Number `json:"total"`
}

// approveEnvelope carries the PayPal approval redirect.
type approveEnvelope struct {
	ApproveURL string `json:"approveUrl"`
}

// checkoutEnvelope carries the BTCPay checkout redirect.
type checkoutEnvelope struct {
	CheckoutURL string `json:"checkoutUrl"`
}

// statusEnvelope acknowledges a webhook delivery.
type statusEnvelope struct {
	Status string `json:"status"`
}
