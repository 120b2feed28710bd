package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const stripeAppointmentKey = "appointment_id"

// checkoutSessions is the part of the Stripe checkout session client we use.
type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Stripe collects payments through hosted Checkout sessions.
type Stripe struct {
	sessions   checkoutSessions
	successURL string
	cancelURL  string
}

func NewStripe(secretKey, successURL, cancelURL string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{
		sessions:   sc.CheckoutSessions,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (s *Stripe) Method() Method { return MethodStripe }

func (s *Stripe) CreatePayable(ctx context.Context, p Payable) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(p.AppointmentID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(p.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
					UnitAmount: stripe.Int64(toMinor(p.Amount, p.Currency)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(stripeAppointmentKey, p.AppointmentID.String())

	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	return &Session{
		Method:      MethodStripe,
		Reference:   cs.ID,
		CheckoutURL: cs.URL,
		Amount:      p.Amount,
		Currency:    p.Currency,
	}, nil
}

// VerifyTransaction re-reads the checkout session from Stripe. The proof only
// names the session; its status comes from Stripe.
func (s *Stripe) VerifyTransaction(ctx context.Context, proof Proof) (*Transaction, error) {
	cs, err := s.sessions.Get(proof.Reference, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe session %s: %w", proof.Reference, err)
	}

	rawID := cs.Metadata[stripeAppointmentKey]
	if rawID == "" {
		rawID = cs.ClientReferenceID
	}
	apptID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s has no appointment reference", ErrProviderResponse, cs.ID)
	}

	return &Transaction{
		Reference:     cs.ID,
		AppointmentID: apptID,
		Amount:        fromMinor(cs.AmountTotal, string(cs.Currency)),
		Currency:      strings.ToUpper(string(cs.Currency)),
		Status:        string(cs.PaymentStatus),
		Paid:          cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}
