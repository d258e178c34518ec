package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
)

func syncServicesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := c.Query("force") == "true"
		count, err := d.Syncer.Sync(c, force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"synced": count})
	}
}

func syncOrdersHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, failed, err := e.ReconcileActiveOrders(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated, "failed": failed})
	}
}

func refundOrderHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		o, err := e.CancelAndRefund(c, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = orders.ErrNotFound
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

func retryOrderHandler(e *orders.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
			return
		}
		o, err := e.Retry(c, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = orders.ErrNotFound
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

func listMarkupRulesHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rules, err := d.Repo.ListMarkupRules(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules": rules})
	}
}

type markupRuleReq struct {
	Name          string  `json:"name" binding:"required"`
	Level         string  `json:"level" binding:"required"`
	Platform      string  `json:"platform"`
	CategoryName  string  `json:"category_name"`
	ServiceID     *uint64 `json:"service_id"`
	Percentage    string  `json:"percentage"`
	FixedAddition string  `json:"fixed_addition"`
	Priority      int     `json:"priority"`
	IsActive      *bool   `json:"is_active"`
}

func (r *markupRuleReq) apply(rule *model.MarkupRule) error {
	switch r.Level {
	case model.MarkupLevelGlobal, model.MarkupLevelPlatform,
		model.MarkupLevelCategory, model.MarkupLevelService:
	default:
		return errors.New("invalid level")
	}
	if r.Level == model.MarkupLevelService && r.ServiceID == nil {
		return errors.New("service rules need service_id")
	}
	pct, fixed := decimal.Zero, decimal.Zero
	var err error
	if r.Percentage != "" {
		if pct, err = decimal.NewFromString(r.Percentage); err != nil {
			return errors.New("invalid percentage")
		}
	}
	if r.FixedAddition != "" {
		if fixed, err = decimal.NewFromString(r.FixedAddition); err != nil {
			return errors.New("invalid fixed_addition")
		}
	}
	rule.Name = r.Name
	rule.Level = r.Level
	rule.Platform = r.Platform
	rule.CategoryName = r.CategoryName
	rule.ServiceID = r.ServiceID
	rule.Percentage = pct
	rule.FixedAddition = fixed
	rule.Priority = r.Priority
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
	return nil
}

func createMarkupRuleHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markupRuleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rule := model.MarkupRule{IsActive: true}
		if err := req.apply(&rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := d.Repo.CreateMarkupRule(c, &rule); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"rule": rule})
	}
}

func updateMarkupRuleHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}
		rule, err := d.Repo.GetMarkupRule(c, ruleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
				return
			}
			writeError(c, err)
			return
		}
		var req markupRuleReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := req.apply(rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := d.Repo.SaveMarkupRule(c, rule); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rule": rule})
	}
}

func providerBalanceHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		bal, err := d.Provider.GetBalance(c, id.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal.Balance, "currency": bal.Currency})
	}
}

func listAPILogsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		logs, err := d.Repo.ListAPILogs(c, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}
