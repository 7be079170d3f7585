package provider

import (
	"fmt"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/google/uuid"
)

// Local is the trusted-internal variant used only when demo mode is enabled:
// the caller supplies nick and amount directly and no external verification
// happens. The surrounding service decides whether the variant exists at all.
type Local struct{}

// NewLocal wires the demo-mode verifier.
func NewLocal() *Local {
	return &Local{}
}

// Verify normalizes a caller-supplied donation in strict integer-dollar mode.
func (local *Local) Verify(rawNick string, rawAmount float64) (Settlement, error) {
	nick, err := donate.NewNick(rawNick)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: nick: %v", ErrMalformed, err)
	}
	amount, err := donate.NewPledgeAmount(rawAmount)
	if err != nil {
		return Settlement{}, fmt.Errorf("%w: amount: %v", ErrMalformed, err)
	}
	return Settlement{
		Provider: ProviderLocal,
		EventID:  uuid.NewString(),
		Nick:     nick,
		Amount:   amount,
	}, nil
}
