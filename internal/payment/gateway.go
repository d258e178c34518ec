// Package payment integrates the Squad payment gateway: top-up initiation,
// verification and webhook settlement against the ledger.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
)

const defaultBaseURL = "https://sandbox-api-d.squadco.com"

// GatewayError is a Squad API failure: transport, non-200 envelope, or a
// rejected request.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string { return "squad: " + e.Message }

// SquadClient talks to the Squad REST API. Amounts cross the wire in kobo.
type SquadClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *zap.SugaredLogger
}

func NewSquadClient(cfg config.SquadConfig, logger *zap.SugaredLogger) *SquadClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &SquadClient{
		baseURL:   base,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logger,
	}
}

// GenerateReference returns a unique payment reference.
func (c *SquadClient) GenerateReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CRV-" + strings.ToUpper(raw[:12])
}

type squadEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitiatePayment starts a checkout and returns the checkout URL.
func (c *SquadClient) InitiatePayment(ctx context.Context, email string, amountNaira decimal.Decimal, transactionRef, callbackURL, customerName string) (string, error) {
	payload := map[string]interface{}{
		"email":           email,
		"amount":          amountNaira.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency":        "NGN",
		"initiate_type":   "inline",
		"transaction_ref": transactionRef,
		"callback_url":    callbackURL,
	}
	if customerName != "" {
		payload["customer_name"] = customerName
	}

	env, code, err := c.post(ctx, "/transaction/initiate", payload)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK || env.Status != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("initiate failed with status %d", code)
		}
		return "", &GatewayError{Message: "initiate failed: " + msg}
	}
	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return "", &GatewayError{Message: "no checkout URL returned"}
	}
	return data.CheckoutURL, nil
}

// VerifyResult is the normalized outcome of a verify call; Amount is naira.
type VerifyResult struct {
	Success    bool
	Amount     decimal.Decimal
	Reference  string
	GatewayRef string
	Status     string
}

// VerifyPayment checks a transaction's state at the gateway by reference.
func (c *SquadClient) VerifyPayment(ctx context.Context, transactionRef string) (VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+transactionRef, nil)
	if err != nil {
		return VerifyResult{}, &GatewayError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return VerifyResult{}, &GatewayError{Message: "verify request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	var env squadEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// Squad sometimes answers an HTML error page.
		return VerifyResult{}, &GatewayError{Message: fmt.Sprintf("invalid response (status %d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK || env.Status != http.StatusOK {
		msg := env.Message
		if msg == "" {
			msg = "verification failed"
		}
		return VerifyResult{}, &GatewayError{Message: "verify failed: " + msg}
	}

	var data struct {
		TransactionStatus string          `json:"transaction_status"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
		TransactionRef    string          `json:"transaction_ref"`
		GatewayRef        string          `json:"gateway_ref"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return VerifyResult{}, &GatewayError{Message: "malformed verify payload"}
	}
	return VerifyResult{
		Success:    strings.EqualFold(data.TransactionStatus, "success"),
		Amount:     data.TransactionAmount.Div(decimal.NewFromInt(100)),
		Reference:  data.TransactionRef,
		GatewayRef: data.GatewayRef,
		Status:     data.TransactionStatus,
	}, nil
}

func (c *SquadClient) post(ctx context.Context, path string, payload interface{}) (squadEnvelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return squadEnvelope{}, 0, &GatewayError{Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return squadEnvelope{}, 0, &GatewayError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return squadEnvelope{}, 0, &GatewayError{Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	var env squadEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return squadEnvelope{}, resp.StatusCode, &GatewayError{Message: fmt.Sprintf("invalid response (status %d)", resp.StatusCode)}
	}
	return env, resp.StatusCode, nil
}

// ValidateWebhookSignature checks the HMAC-SHA512 hex signature Squad sends
// in x-squad-encrypted-body. Comparison is constant-time.
func ValidateWebhookSignature(body []byte, signature, secretKey string) bool {
	if signature == "" || secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
