package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/settlement-service/common/auth"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/services"
	"gorm.io/gorm"
)

// SettlementReader is the read side used by the status and audit routes.
type SettlementReader interface {
	Settlement(ctx context.Context, refCode string) (*models.SettlementView, error)
	AuditLedger(ctx context.Context) ([]models.LedgerImbalance, error)
}

type SettlementController struct {
	reader SettlementReader
}

func NewSettlementController(reader SettlementReader) *SettlementController {
	return &SettlementController{reader: reader}
}

// GetSettlement handles GET /orders/:ref/settlement
func (sc *SettlementController) GetSettlement(c *gin.Context) {
	view, err := sc.reader.Settlement(c.Request.Context(), c.Param("ref"))
	if err != nil {
		abortWithKind(c, err)
		return
	}
	if !auth.CanReadStore(c, view.Order.StoreID.String()) {
		abort(c, http.StatusNotFound, services.KindNotFound.String(), "order not found", nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AuditLedger handles GET /ledger/audit
func (sc *SettlementController) AuditLedger(c *gin.Context) {
	if c.GetString(auth.ContextRole) != auth.RoleAdmin {
		abort(c, http.StatusForbidden, "forbidden", "admin role required", nil)
		return
	}
	rows, err := sc.reader.AuditLedger(c.Request.Context())
	if err != nil {
		abortWithKind(c, err)
		return
	}
	if rows == nil {
		rows = []models.LedgerImbalance{}
	}
	c.JSON(http.StatusOK, gin.H{"balanced": len(rows) == 0, "imbalances": rows})
}

// HealthController reports process and database liveness.
type HealthController struct {
	db *gorm.DB
}

func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// Health handles GET /health
func (hc *HealthController) Health(c *gin.Context) {
	sqlDB, err := hc.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "settlement-service", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "settlement-service"})
}
