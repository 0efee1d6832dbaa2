package payment

import (
	"regexp"
	"strings"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
)

var walletPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]{1,128}$`)

const maxSignatureLen = 4096

// Proof is the client's claim that it paid the entry fee.
type Proof struct {
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`
}

// Verification is the verifier's narrowed answer about a proof.
type Verification struct {
	Payer  string
	Amount float64
}

// ValidateWallet checks the shape of a wallet identity.
func ValidateWallet(wallet string) error {
	if !walletPattern.MatchString(wallet) {
		return apperr.Invalid("wallet must be 1-128 characters of letters, digits, '_', ':' or '-'")
	}
	return nil
}

// Validate checks the proof before it is sent anywhere.
func (p Proof) Validate() error {
	if err := ValidateWallet(p.Wallet); err != nil {
		return err
	}
	sig := strings.TrimSpace(p.Signature)
	if sig == "" {
		return apperr.Invalid("payment signature is required")
	}
	if len(sig) > maxSignatureLen {
		return apperr.Invalid("payment signature is too long")
	}
	return nil
}
