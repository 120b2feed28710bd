// Package payment is the boundary to the external payment gateways. The
// booking engine never trusts a client's word that a payment succeeded: every
// confirmation goes through Reconciler.Verify, which asks the provider itself.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodStripe   Method = "stripe"
	MethodRazorpay Method = "razorpay"
)

var (
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrSignatureMismatch  = errors.New("payment signature does not match")
	ErrProviderResponse   = errors.New("unexpected payment provider response")
	ErrMissingReference   = errors.New("payment reference is required")
	ErrProviderNotEnabled = errors.New("payment provider is not configured")
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodStripe, MethodRazorpay:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Payable is what the engine asks a provider to collect.
type Payable struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Description   string
}

// Session is a provider-side payable the client is redirected to.
type Session struct {
	Method      Method
	Reference   string
	CheckoutURL string
	Amount      decimal.Decimal
	Currency    string
}

// Proof is whatever the client or a gateway callback hands back after paying.
// Only Reference is mandatory; Razorpay callbacks also carry a payment id and
// signature.
type Proof struct {
	Method    Method
	Reference string
	PaymentID string
	Signature string
}

// Transaction is the provider's authoritative view of a payable.
type Transaction struct {
	Reference     string
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Status        string
	Paid          bool
}

type Provider interface {
	Method() Method
	CreatePayable(ctx context.Context, p Payable) (*Session, error)
	VerifyTransaction(ctx context.Context, proof Proof) (*Transaction, error)
}

// minorExponent is the number of decimal places in a currency's smallest
// unit. Currencies not listed use two.
func minorExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "BIF", "CLP", "DJF", "GNF", "ISK", "JPY", "KMF", "KRW", "PYG",
		"RWF", "UGX", "VND", "VUV", "XAF", "XOF", "XPF":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// toMinor converts a major-unit amount to the provider's smallest unit.
func toMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorExponent(currency)).Round(0).IntPart()
}

func fromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -minorExponent(currency))
}
