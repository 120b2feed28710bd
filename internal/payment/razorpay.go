package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const razorpayBaseURL = "https://api.razorpay.com"

// Razorpay collects payments through Razorpay orders. The client completes
// the order in the Razorpay widget and posts back the order id, payment id
// and signature.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Client    *http.Client
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{
		KeyID:     keyID,
		KeySecret: keySecret,
		BaseURL:   razorpayBaseURL,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) Method() Method { return MethodRazorpay }

func (r *Razorpay) CreatePayable(ctx context.Context, p Payable) (*Session, error) {
	payload := razorpayOrderRequest{
		Amount:   toMinor(p.Amount, p.Currency),
		Currency: strings.ToUpper(p.Currency),
		Receipt:  p.AppointmentID.String(),
		Notes:    map[string]string{"appointment_id": p.AppointmentID.String()},
	}

	var order razorpayOrder
	if err := r.do(ctx, http.MethodPost, "/v1/orders", payload, &order); err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	return &Session{
		Method:    MethodRazorpay,
		Reference: order.ID,
		Amount:    fromMinor(order.Amount, order.Currency),
		Currency:  order.Currency,
	}, nil
}

// VerifyTransaction checks the callback signature when one is supplied and
// then fetches the order from Razorpay; the order status decides.
func (r *Razorpay) VerifyTransaction(ctx context.Context, proof Proof) (*Transaction, error) {
	if proof.PaymentID != "" || proof.Signature != "" {
		if !r.validSignature(proof.Reference, proof.PaymentID, proof.Signature) {
			return nil, ErrSignatureMismatch
		}
	}

	var order razorpayOrder
	if err := r.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(proof.Reference), nil, &order); err != nil {
		return nil, fmt.Errorf("razorpay fetch order %s: %w", proof.Reference, err)
	}

	apptID, err := uuid.Parse(order.Receipt)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s receipt %q", ErrProviderResponse, order.ID, order.Receipt)
	}

	return &Transaction{
		Reference:     order.ID,
		AppointmentID: apptID,
		Amount:        fromMinor(order.AmountPaid, order.Currency),
		Currency:      strings.ToUpper(order.Currency),
		Status:        order.Status,
		Paid:          order.Status == "paid",
	}, nil
}

func (r *Razorpay) signature(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(r.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) validSignature(orderID, paymentID, sig string) bool {
	expected := r.signature(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (r *Razorpay) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(r.KeyID, r.KeySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr razorpayError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("%w: %d %s: %s", ErrProviderResponse, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return fmt.Errorf("%w: status %d", ErrProviderResponse, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}
	return nil
}
