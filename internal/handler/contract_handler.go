// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"contract-portal-service/internal/domain"
	"contract-portal-service/internal/middleware"
	"contract-portal-service/internal/usecase"
	"contract-portal-service/pkg/httputil"
)

var tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// 利用者ロール。認証ゲートウェイが検証済みのヘッダで渡す。
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// ContractHandler はHTTPハンドラを提供する。
type ContractHandler struct {
	service *usecase.ContractService
}

// NewContractHandler は新しいContractHandlerを生成する。
func NewContractHandler(service *usecase.ContractService) *ContractHandler {
	return &ContractHandler{service: service}
}

func validateTenantID(tenantID string) error {
	if tenantID == "" {
		return domain.ErrInvalidTenantID
	}
	if len(tenantID) > 64 {
		return domain.ErrInvalidTenantID
	}
	if !tenantIDRegex.MatchString(tenantID) {
		return domain.ErrInvalidTenantID
	}
	return nil
}

func validateContractID(id string) error {
	if id == "" {
		return domain.ErrInvalidContractID
	}
	if len(id) > 64 {
		return domain.ErrInvalidContractID
	}
	if !tenantIDRegex.MatchString(id) {
		return domain.ErrInvalidContractID
	}
	return nil
}

func requestRole(r *http.Request) string {
	role := r.Header.Get("X-User-Role")
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
		return role
	}
	return RoleViewer
}

func requestUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// ContractResponse は契約のレスポンス形式。金額・マージン系フィールドは
// admin向けレスポンスにのみ含める（nullではなくキーごと省略する）。
type ContractResponse struct {
	ID                string               `json:"id"`
	TenantID          string               `json:"tenant_id"`
	Title             string               `json:"title"`
	ContractNumber    string               `json:"contract_number,omitempty"`
	ContractType      string               `json:"contract_type"`
	PartyA            string               `json:"party_a"`
	PartyB            string               `json:"party_b"`
	PartyBContact     *domain.PartyContact `json:"party_b_contact,omitempty"`
	StartDate         string               `json:"start_date"`
	EndDate           string               `json:"end_date,omitempty"`
	Currency          string               `json:"currency"`
	PaymentTerms      string               `json:"payment_terms,omitempty"`
	Status            string               `json:"status"`
	AutoRenewal       bool                 `json:"auto_renewal"`
	RenewalNoticeDays int                  `json:"renewal_notice_days,omitempty"`
	Description       string               `json:"description,omitempty"`
	Memo              string               `json:"memo,omitempty"`
	ParentContractID  string               `json:"parent_contract_id,omitempty"`
	CreatedBy         string               `json:"created_by,omitempty"`
	InternalManagerID string               `json:"internal_manager_id,omitempty"`
	PaymentCycle      string               `json:"payment_cycle,omitempty"`
	VatIncluded       bool                 `json:"vat_included"`

	HasPartner     bool   `json:"has_partner"`
	PartnerName    string `json:"partner_name,omitempty"`
	CommissionType string `json:"commission_type,omitempty"`

	NotifyBefore30Days bool `json:"notify_before_30_days"`
	NotifyBefore7Days  bool `json:"notify_before_7_days"`
	NotifyOnExpiry     bool `json:"notify_on_expiry"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// admin限定フィールド
	Amount                 *string `json:"amount,omitempty"`
	PurchasePrice          *string `json:"purchase_price,omitempty"`
	SellingPrice           *string `json:"selling_price,omitempty"`
	PurchaseCommissionRate *string `json:"purchase_commission_rate,omitempty"`
	PartnerCommission      *string `json:"partner_commission,omitempty"`
	ActualPurchasePrice    *string `json:"actual_purchase_price,omitempty"`
	ActualSellingPrice     *string `json:"actual_selling_price,omitempty"`
	BaseMarginRate         *string `json:"base_margin_rate,omitempty"`
	ActualMarginRate       *string `json:"actual_margin_rate,omitempty"`
	ActualMarginAmount     *string `json:"actual_margin_amount,omitempty"`
}

// ContractListResponse は契約一覧のレスポンス形式。
type ContractListResponse struct {
	Contracts  []ContractResponse `json:"contracts"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// DashboardResponse はダッシュボードのレスポンス形式。
type DashboardResponse struct {
	Total        int64                `json:"total"`
	ByStatus     []domain.StatusCount `json:"by_status"`
	ByType       []domain.TypeCount   `json:"by_type"`
	ExpiringIn30 int                  `json:"expiring_in_30_days"`
	ExpiringIn7  int                  `json:"expiring_in_7_days"`
}

// HistoryResponse は契約変更履歴のレスポンス形式。
type HistoryResponse struct {
	ID           string                 `json:"id"`
	ContractID   string                 `json:"contract_id"`
	Action       string                 `json:"action"`
	PreviousData map[string]interface{} `json:"previous_data,omitempty"`
	NewData      map[string]interface{} `json:"new_data,omitempty"`
	ChangedBy    string                 `json:"changed_by"`
	ChangedAt    string                 `json:"changed_at"`
}

func toContractResponse(c *domain.Contract) ContractResponse {
	resp := ContractResponse{
		ID:                 c.ID,
		TenantID:           c.TenantID,
		Title:              c.Title,
		ContractNumber:     c.ContractNumber,
		ContractType:       string(c.ContractType),
		PartyA:             c.PartyA,
		PartyB:             c.PartyB,
		PartyBContact:      c.PartyBContact,
		StartDate:          c.StartDate.Format("2006-01-02"),
		Currency:           c.Currency,
		PaymentTerms:       c.PaymentTerms,
		Status:             string(c.Status),
		AutoRenewal:        c.AutoRenewal,
		RenewalNoticeDays:  c.RenewalNoticeDays,
		Description:        c.Description,
		Memo:               c.Memo,
		ParentContractID:   c.ParentContractID,
		CreatedBy:          c.CreatedBy,
		InternalManagerID:  c.InternalManagerID,
		PaymentCycle:       c.PaymentCycle,
		VatIncluded:        c.VatIncluded,
		HasPartner:         c.HasPartner,
		PartnerName:        c.PartnerName,
		CommissionType:     string(c.PartnerCommissionType),
		NotifyBefore30Days: c.NotifyBefore30Days,
		NotifyBefore7Days:  c.NotifyBefore7Days,
		NotifyOnExpiry:     c.NotifyOnExpiry,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          c.UpdatedAt.Format(time.RFC3339),
	}
	if c.EndDate != nil {
		resp.EndDate = c.EndDate.Format("2006-01-02")
	}
	return resp
}

func decimalString(v decimal.Decimal) *string {
	s := v.String()
	return &s
}

// マージン率・金額は表示境界でのみ小数第2位に丸める
func roundedString(v decimal.Decimal) *string {
	s := v.Round(2).String()
	return &s
}

func toDecryptedResponse(d *domain.DecryptedContract) ContractResponse {
	resp := toContractResponse(&d.Contract)
	if d.Amount != nil {
		resp.Amount = decimalString(*d.Amount)
	}
	if d.PurchasePrice != nil {
		resp.PurchasePrice = decimalString(*d.PurchasePrice)
	}
	if d.SellingPrice != nil {
		resp.SellingPrice = decimalString(*d.SellingPrice)
	}
	resp.PurchaseCommissionRate = decimalString(d.Contract.PurchaseCommissionRate)
	resp.PartnerCommission = decimalString(d.Contract.PartnerCommission)
	resp.ActualPurchasePrice = roundedString(d.Finance.ActualPurchasePrice)
	resp.ActualSellingPrice = roundedString(d.Finance.ActualSellingPrice)
	resp.BaseMarginRate = roundedString(d.Finance.BaseMarginRate)
	resp.ActualMarginRate = roundedString(d.Finance.ActualMarginRate)
	resp.ActualMarginAmount = roundedString(d.Finance.ActualMarginAmount)
	return resp
}

// CreateContractRequest は契約作成のリクエスト形式。
type CreateContractRequest struct {
	Title             string               `json:"title"`
	ContractNumber    string               `json:"contract_number"`
	ContractType      string               `json:"contract_type"`
	PartyA            string               `json:"party_a"`
	PartyB            string               `json:"party_b"`
	PartyBContact     *domain.PartyContact `json:"party_b_contact"`
	StartDate         string               `json:"start_date"`
	EndDate           string               `json:"end_date"`
	Currency          string               `json:"currency"`
	PaymentTerms      string               `json:"payment_terms"`
	Status            string               `json:"status"`
	AutoRenewal       bool                 `json:"auto_renewal"`
	RenewalNoticeDays int                  `json:"renewal_notice_days"`
	Description       string               `json:"description"`
	Memo              string               `json:"memo"`
	InternalManagerID string               `json:"internal_manager_id"`
	PaymentCycle      string               `json:"payment_cycle"`
	VatIncluded       *bool                `json:"vat_included"`

	Amount                 *decimal.Decimal `json:"amount"`
	PurchasePrice          *decimal.Decimal `json:"purchase_price"`
	PurchaseCommissionRate *decimal.Decimal `json:"purchase_commission_rate"`
	SellingPrice           *decimal.Decimal `json:"selling_price"`
	HasPartner             bool             `json:"has_partner"`
	PartnerName            string           `json:"partner_name"`
	CommissionType         string           `json:"commission_type"`
	PartnerCommission      *decimal.Decimal `json:"partner_commission"`

	NotifyBefore30Days *bool `json:"notify_before_30_days"`
	NotifyBefore7Days  *bool `json:"notify_before_7_days"`
	NotifyOnExpiry     *bool `json:"notify_on_expiry"`
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// CreateContract は契約を作成する。editor以上のロールが必要。
func (h *ContractHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	role := requestRole(r)
	if role != RoleAdmin && role != RoleEditor {
		httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
		return
	}

	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Title == "" || req.ContractType == "" {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "title and contract_type are required")
		return
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid start_date, want YYYY-MM-DD")
		return
	}
	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := parseDate(req.EndDate)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid end_date, want YYYY-MM-DD")
			return
		}
		endDate = &parsed
	}

	contract, err := h.service.Create(r.Context(), tenantID, requestUserID(r), usecase.CreateContractInput{
		Title:                  req.Title,
		ContractNumber:         req.ContractNumber,
		ContractType:           req.ContractType,
		PartyA:                 req.PartyA,
		PartyB:                 req.PartyB,
		PartyBContact:          req.PartyBContact,
		StartDate:              startDate,
		EndDate:                endDate,
		Currency:               req.Currency,
		PaymentTerms:           req.PaymentTerms,
		Status:                 req.Status,
		AutoRenewal:            req.AutoRenewal,
		RenewalNoticeDays:      req.RenewalNoticeDays,
		Description:            req.Description,
		Memo:                   req.Memo,
		InternalManagerID:      req.InternalManagerID,
		PaymentCycle:           req.PaymentCycle,
		VatIncluded:            req.VatIncluded,
		Amount:                 req.Amount,
		PurchasePrice:          req.PurchasePrice,
		PurchaseCommissionRate: req.PurchaseCommissionRate,
		SellingPrice:           req.SellingPrice,
		HasPartner:             req.HasPartner,
		PartnerName:            req.PartnerName,
		CommissionType:         req.CommissionType,
		PartnerCommission:      req.PartnerCommission,
		NotifyBefore30Days:     req.NotifyBefore30Days,
		NotifyBefore7Days:      req.NotifyBefore7Days,
		NotifyOnExpiry:         req.NotifyOnExpiry,
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_CONTRACT", tenantID, "", "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_CONTRACT", tenantID, contract.ID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toContractResponse(contract))
}

// GetContract は契約を取得する。adminには復号済み金額とマージンを含め、
// それ以外のロールには金額系フィールドを含めない。
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	if requestRole(r) != RoleAdmin {
		contract, err := h.service.GetRecord(r.Context(), tenantID, contractID)
		if err != nil {
			middleware.WriteAuditLog(r.Context(), "GET_CONTRACT", tenantID, contractID, "FAILED")
			writeDomainError(w, err)
			return
		}
		middleware.WriteAuditLog(r.Context(), "GET_CONTRACT", tenantID, contractID, "SUCCESS")
		httputil.JSON(w, http.StatusOK, toContractResponse(contract))
		return
	}

	decrypted, err := h.service.Get(r.Context(), tenantID, contractID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_CONTRACT", tenantID, contractID, "FAILED")
		writeDomainError(w, err)
		return
	}
	middleware.WriteAuditLog(r.Context(), "GET_CONTRACT", tenantID, contractID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toDecryptedResponse(decrypted))
}

// ListContracts は契約一覧を取得する。金額は含めない。
func (h *ContractHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}

	query := r.URL.Query()
	filter := domain.ContractFilter{
		ContractType: domain.ContractType(query.Get("contract_type")),
		Status:       domain.ContractStatus(query.Get("status")),
		Search:       query.Get("search"),
		SortBy:       query.Get("sort_by"),
		SortOrder:    query.Get("sort_order"),
	}
	if v := query.Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := query.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := query.Get("start_date_from"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid start_date_from")
			return
		}
		filter.StartDateFrom = &parsed
	}
	if v := query.Get("start_date_to"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid start_date_to")
			return
		}
		filter.StartDateTo = &parsed
	}
	if v := query.Get("expiring_within"); v != "" {
		filter.ExpiringWithin, _ = strconv.Atoi(v)
	}

	page, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	contracts := make([]ContractResponse, 0, len(page.Items))
	for _, c := range page.Items {
		contracts = append(contracts, toContractResponse(c))
	}
	httputil.JSON(w, http.StatusOK, ContractListResponse{
		Contracts:  contracts,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	})
}

// UpdateContractRequest は契約更新のリクエスト形式。
// 金額フィールドはキーの有無で「変更なし」と「null=クリア」を区別する。
type UpdateContractRequest struct {
	Title             *string              `json:"title"`
	ContractNumber    *string              `json:"contract_number"`
	ContractType      *string              `json:"contract_type"`
	PartyA            *string              `json:"party_a"`
	PartyB            *string              `json:"party_b"`
	PartyBContact     *domain.PartyContact `json:"party_b_contact"`
	StartDate         *string              `json:"start_date"`
	EndDate           *string              `json:"end_date"`
	Currency          *string              `json:"currency"`
	PaymentTerms      *string              `json:"payment_terms"`
	AutoRenewal       *bool                `json:"auto_renewal"`
	RenewalNoticeDays *int                 `json:"renewal_notice_days"`
	Description       *string              `json:"description"`
	Memo              *string              `json:"memo"`
	InternalManagerID *string              `json:"internal_manager_id"`
	PaymentCycle      *string              `json:"payment_cycle"`
	VatIncluded       *bool                `json:"vat_included"`

	Amount                 *decimal.Decimal `json:"amount"`
	PurchasePrice          *decimal.Decimal `json:"purchase_price"`
	PurchaseCommissionRate *decimal.Decimal `json:"purchase_commission_rate"`
	SellingPrice           *decimal.Decimal `json:"selling_price"`
	HasPartner             *bool            `json:"has_partner"`
	PartnerName            *string          `json:"partner_name"`
	CommissionType         *string          `json:"commission_type"`
	PartnerCommission      *decimal.Decimal `json:"partner_commission"`

	NotifyBefore30Days *bool `json:"notify_before_30_days"`
	NotifyBefore7Days  *bool `json:"notify_before_7_days"`
	NotifyOnExpiry     *bool `json:"notify_on_expiry"`
}

// UpdateContract は契約を更新する。editor以上のロールが必要。
func (h *ContractHandler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	role := requestRole(r)
	if role != RoleAdmin && role != RoleEditor {
		httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	var req UpdateContractRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	// キーの有無を判定する（nullによるクリアとキー省略を区別するため）
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	input := usecase.UpdateContractInput{
		Title:                  req.Title,
		ContractNumber:         req.ContractNumber,
		ContractType:           req.ContractType,
		PartyA:                 req.PartyA,
		PartyB:                 req.PartyB,
		PartyBContact:          req.PartyBContact,
		Currency:               req.Currency,
		PaymentTerms:           req.PaymentTerms,
		AutoRenewal:            req.AutoRenewal,
		RenewalNoticeDays:      req.RenewalNoticeDays,
		Description:            req.Description,
		Memo:                   req.Memo,
		InternalManagerID:      req.InternalManagerID,
		PaymentCycle:           req.PaymentCycle,
		VatIncluded:            req.VatIncluded,
		PurchaseCommissionRate: req.PurchaseCommissionRate,
		HasPartner:             req.HasPartner,
		PartnerName:            req.PartnerName,
		CommissionType:         req.CommissionType,
		PartnerCommission:      req.PartnerCommission,
		NotifyBefore30Days:     req.NotifyBefore30Days,
		NotifyBefore7Days:      req.NotifyBefore7Days,
		NotifyOnExpiry:         req.NotifyOnExpiry,
	}

	if req.StartDate != nil {
		parsed, err := parseDate(*req.StartDate)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid start_date, want YYYY-MM-DD")
			return
		}
		input.StartDate = &parsed
	}
	if _, ok := raw["end_date"]; ok {
		if req.EndDate == nil {
			input.ClearEndDate = true
		} else {
			parsed, err := parseDate(*req.EndDate)
			if err != nil {
				httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid end_date, want YYYY-MM-DD")
				return
			}
			input.EndDate = &parsed
		}
	}
	if _, ok := raw["amount"]; ok {
		input.Amount = usecase.AmountPatch{Present: true, Value: req.Amount}
	}
	if _, ok := raw["purchase_price"]; ok {
		input.PurchasePrice = usecase.AmountPatch{Present: true, Value: req.PurchasePrice}
	}
	if _, ok := raw["selling_price"]; ok {
		input.SellingPrice = usecase.AmountPatch{Present: true, Value: req.SellingPrice}
	}

	contract, err := h.service.Update(r.Context(), tenantID, contractID, requestUserID(r), input)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "UPDATE_CONTRACT", tenantID, contractID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_CONTRACT", tenantID, contractID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toContractResponse(contract))
}

// DeleteContract は契約を削除する。作成者本人のみ実行できる。
func (h *ContractHandler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	contract, err := h.service.GetRecord(r.Context(), tenantID, contractID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if contract.CreatedBy == "" || contract.CreatedBy != requestUserID(r) {
		middleware.WriteAuditLog(r.Context(), "DELETE_CONTRACT", tenantID, contractID, "FORBIDDEN")
		httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "only the contract owner can delete it")
		return
	}

	if err := h.service.Delete(r.Context(), tenantID, contractID); err != nil {
		middleware.WriteAuditLog(r.Context(), "DELETE_CONTRACT", tenantID, contractID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_CONTRACT", tenantID, contractID, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatusRequest はステータス変更のリクエスト形式。
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateContractStatus は契約ステータスを変更する。editor以上のロールが必要。
func (h *ContractHandler) UpdateContractStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	role := requestRole(r)
	if role != RoleAdmin && role != RoleEditor {
		httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	contract, err := h.service.UpdateStatus(r.Context(), tenantID, contractID, requestUserID(r), domain.ContractStatus(req.Status))
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "UPDATE_STATUS", tenantID, contractID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_STATUS", tenantID, contractID, "SUCCESS")
	httputil.JSON(w, http.StatusOK, toContractResponse(contract))
}

// RenewContract は契約を更新（リニューアル）する。editor以上のロールが必要。
func (h *ContractHandler) RenewContract(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	role := requestRole(r)
	if role != RoleAdmin && role != RoleEditor {
		httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	renewed, err := h.service.Renew(r.Context(), tenantID, contractID, requestUserID(r))
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "RENEW_CONTRACT", tenantID, contractID, "FAILED")
		writeDomainError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "RENEW_CONTRACT", tenantID, contractID, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toContractResponse(renewed))
}

// GetExpiringContracts は満了予定の契約一覧を取得する。
func (h *ContractHandler) GetExpiringContracts(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 365 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "days must be between 1 and 365")
			return
		}
		days = parsed
	}

	contracts, err := h.service.GetExpiring(r.Context(), tenantID, days)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	responses := make([]ContractResponse, 0, len(contracts))
	for _, c := range contracts {
		responses = append(responses, toContractResponse(c))
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"contracts": responses})
}

// ExpiryNoticeResponse は期限通知のレスポンス形式。
type ExpiryNoticeResponse struct {
	Contract ContractResponse `json:"contract"`
	Kind     string           `json:"kind"`
	DaysLeft int              `json:"days_left"`
}

// GetExpiryNotices は通知設定に基づく期限通知の対象契約を取得する。
func (h *ContractHandler) GetExpiryNotices(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}

	notices, err := h.service.ExpiryNotifications(r.Context(), tenantID, time.Now())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	responses := make([]ExpiryNoticeResponse, 0, len(notices))
	for _, n := range notices {
		responses = append(responses, ExpiryNoticeResponse{
			Contract: toContractResponse(&n.Contract),
			Kind:     string(n.Kind),
			DaysLeft: n.DaysLeft,
		})
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"notifications": responses})
}

// GetDashboard は契約統計を取得する。
func (h *ContractHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}

	dashboard, err := h.service.GetDashboard(r.Context(), tenantID)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, DashboardResponse{
		Total:        dashboard.Total,
		ByStatus:     dashboard.ByStatus,
		ByType:       dashboard.ByType,
		ExpiringIn30: dashboard.ExpiringIn30,
		ExpiringIn7:  dashboard.ExpiringIn7,
	})
}

// GetContractHistory は契約の変更履歴を取得する。
func (h *ContractHandler) GetContractHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := validateTenantID(tenantID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
		return
	}
	contractID := chi.URLParam(r, "contract_id")
	if err := validateContractID(contractID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_ID", "invalid contract ID format")
		return
	}

	histories, err := h.service.GetHistory(r.Context(), tenantID, contractID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]HistoryResponse, 0, len(histories))
	for _, entry := range histories {
		responses = append(responses, HistoryResponse{
			ID:           entry.ID,
			ContractID:   entry.ContractID,
			Action:       string(entry.Action),
			PreviousData: entry.PreviousData,
			NewData:      entry.NewData,
			ChangedBy:    entry.ChangedBy,
			ChangedAt:    entry.ChangedAt.Format(time.RFC3339),
		})
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{"history": responses})
}

// writeDomainError はドメインエラーをHTTPステータスに変換する。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		httputil.Error(w, http.StatusNotFound, "CONTRACT_NOT_FOUND", "contract not found")
	case errors.Is(err, domain.ErrContractAlreadyRenewed):
		httputil.Error(w, http.StatusConflict, "ALREADY_RENEWED", "contract has already been renewed")
	case errors.Is(err, domain.ErrDecryptFailed):
		httputil.Error(w, http.StatusUnprocessableEntity, "DECRYPT_FAILED", "failed to decrypt contract amounts")
	case errors.Is(err, domain.ErrInvalidContractType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_CONTRACT_TYPE", "invalid contract type")
	case errors.Is(err, domain.ErrInvalidStatus):
		httputil.Error(w, http.StatusBadRequest, "INVALID_STATUS", "invalid contract status")
	case errors.Is(err, domain.ErrInvalidCommissionType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_COMMISSION_TYPE", "invalid commission type")
	case errors.Is(err, domain.ErrNegativeAmount):
		httputil.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "amounts must not be negative")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
