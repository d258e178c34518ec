package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhookSignature(t *testing.T) {
	body := []byte(`{"Event":"charge_successful"}`)
	secret := "sk_test_secret"

	assert.True(t, ValidateWebhookSignature(body, sign(body, secret), secret))
	assert.False(t, ValidateWebhookSignature(body, sign(body, "wrong"), secret))
	assert.False(t, ValidateWebhookSignature([]byte(`tampered`), sign(body, secret), secret))
	assert.False(t, ValidateWebhookSignature(body, "", secret))
	// no configured secret means no webhook is ever trusted
	assert.False(t, ValidateWebhookSignature(body, sign(body, ""), ""))
}

func TestGenerateReference(t *testing.T) {
	log, _ := logger.NewLogger("error")
	c := NewSquadClient(config.SquadConfig{}, log)

	ref := c.GenerateReference()
	assert.True(t, strings.HasPrefix(ref, "CRV-"))
	assert.Len(t, ref, 16)
	assert.Equal(t, strings.ToUpper(ref), ref)

	assert.NotEqual(t, ref, c.GenerateReference())
}

func newTestSquad(t *testing.T, handler http.HandlerFunc) (*SquadClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log, _ := logger.NewLogger("error")
	return NewSquadClient(config.SquadConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, log), srv
}

func TestInitiatePayment(t *testing.T) {
	c, _ := newTestSquad(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initiate", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var req struct {
			Amount         int64  `json:"amount"`
			Currency       string `json:"currency"`
			TransactionRef string `json:"transaction_ref"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 50000, req.Amount, "naira sent to the gateway in kobo")
		assert.Equal(t, "NGN", req.Currency)
		assert.Equal(t, "CRV-1", req.TransactionRef)

		w.Write([]byte(`{"status":200,"message":"success","data":{"checkout_url":"https://checkout.squadco.com/abc"}}`))
	})

	url, err := c.InitiatePayment(context.Background(), "a@b.c", decimal.NewFromInt(500), "CRV-1", "", "Ada")
	assert.NoError(t, err)
	assert.Equal(t, "https://checkout.squadco.com/abc", url)
}

func TestInitiatePayment_Rejected(t *testing.T) {
	c, _ := newTestSquad(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":400,"message":"invalid amount"}`))
	})

	_, err := c.InitiatePayment(context.Background(), "a@b.c", decimal.NewFromInt(500), "CRV-1", "", "")
	var gwErr *GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Contains(t, gwErr.Message, "invalid amount")
}

func TestVerifyPayment_KoboToNaira(t *testing.T) {
	c, _ := newTestSquad(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/CRV-9", r.URL.Path)
		w.Write([]byte(`{"status":200,"data":{"transaction_status":"Success","transaction_amount":50000,"transaction_ref":"CRV-9","gateway_ref":"SQ-1"}}`))
	})

	res, err := c.VerifyPayment(context.Background(), "CRV-9")
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "500.0000", res.Amount.StringFixed(4))
	assert.Equal(t, "CRV-9", res.Reference)
	assert.Equal(t, "SQ-1", res.GatewayRef)
}

func TestVerifyPayment_HTMLErrorPage(t *testing.T) {
	c, _ := newTestSquad(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>502 Bad Gateway</html>`))
	})

	_, err := c.VerifyPayment(context.Background(), "CRV-9")
	var gwErr *GatewayError
	assert.ErrorAs(t, err, &gwErr)
}
