// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// AuditLog は監査ログの構造体。
// 金額の平文・暗号文は監査ログに含めない。
type AuditLog struct {
	Operation  string `json:"operation"`
	TenantID   string `json:"tenant_id"`
	ContractID string `json:"contract_id,omitempty"`
	Result     string `json:"result"`
	Timestamp  string `json:"timestamp"`
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, tenantID string, contractID string, result string) {
	slog.InfoContext(ctx, "contract operation completed",
		"operation", operation,
		"tenant_id", tenantID,
		"contract_id", contractID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
