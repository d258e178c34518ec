package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
	"github.com/0xRedwolf/caryvn-backend/internal/payment"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
)

func balanceHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		w, err := l.GetOrCreateWallet(c, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		bal, err := l.Balance(c, w.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal, "currency": w.Currency})
	}
}

func historyHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		w, err := l.GetOrCreateWallet(c, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().AddDate(0, -1, 0).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := l.History(c, w.ID, limit, since)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

func listServicesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		svcs, err := d.Repo.ListActiveServices(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"services": svcs})
	}
}

type placeOrderReq struct {
	ServiceID uint64 `json:"service_id" binding:"required"`
	Link      string `json:"link" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Comments  string `json:"comments"`
}

func placeOrderHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := IdentityFrom(c)
		res, err := e.PlaceOrder(c, id.UserID, req.ServiceID, req.Link, req.Quantity, req.Comments)
		if err != nil {
			writeError(c, err)
			return
		}
		status := http.StatusCreated
		if res.Refunded {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"order": res.Order, "refunded": res.Refunded, "message": res.Message})
	}
}

func listOrdersHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		list, total, err := e.ListOrders(c, id.UserID, c.Query("status"), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list, "total": total})
	}
}

// getOrderHandler returns an order, refreshing its status from the provider
// when ?refresh=true and the order is still active.
func getOrderHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		o, err := e.GetUserOrder(c, id.UserID, orderID)
		if err != nil {
			writeError(c, err)
			return
		}
		if c.Query("refresh") == "true" && o.ProviderOrderID != "" {
			if _, err := e.RefreshOrder(c, o); err != nil {
				// stale data beats a hard failure on a read path
				c.JSON(http.StatusOK, gin.H{"order": o, "refreshed": false})
				return
			}
			c.JSON(http.StatusOK, gin.H{"order": o, "refreshed": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

type topupReq struct {
	Amount      string `json:"amount" binding:"required"`
	CallbackURL string `json:"callback_url"`
}

func topupHandler(p *payment.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req topupReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		id, _ := IdentityFrom(c)
		intent, err := p.InitiateTopup(c, id.UserID, id.Email, id.Name, amt, req.CallbackURL)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, intent)
	}
}

func verifyTopupHandler(p *payment.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		st, err := p.VerifyTopup(c, id.UserID, c.Param("reference"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// webhookHandler is unauthenticated; the HMAC signature is the auth.
func webhookHandler(p *payment.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		sig := c.GetHeader("x-squad-encrypted-body")
		if err := p.HandleWebhook(c, body, sig); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var provErr *provider.Error
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, orders.ErrValidation),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidTopup),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrNotRefundable), errors.Is(err, orders.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, payment.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &provErr), errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
