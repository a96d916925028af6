package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys handlers use to name what a request touched.
const (
	CtxAuditResourceID = "audit_resource_id"
	CtxAuditAddress    = "audit_address"
)

// SetAuditTarget records the resource and wallet address for the audit entry
// written after the response.
func SetAuditTarget(c *gin.Context, resourceID, address string) {
	c.Set(CtxAuditResourceID, resourceID)
	c.Set(CtxAuditAddress, address)
}

// AuditLog creates an audit middleware that logs successful write operations.
// It maps HTTP methods and paths to audit actions.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		detailFields := map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}
		if sub := c.GetString(CtxSubject); sub != "" {
			detailFields["operator"] = sub
		}
		details, _ := json.Marshal(detailFields)

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResourceID),
			Address:      c.GetString(CtxAuditAddress),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapPathToAction(path, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch path {
	case "/api/v1/transfers/initiate":
		return domain.AuditActionInitiate, "approval"
	case "/api/v1/transfers/settle":
		return domain.AuditActionSettle, "transaction"
	case "/api/v1/wallets":
		return domain.AuditActionRegister, "wallet"
	case "/api/v1/admin/wallets/topup":
		return domain.AuditActionTopup, "wallet"
	}
	return "", ""
}
