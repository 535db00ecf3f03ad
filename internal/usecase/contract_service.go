// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"contract-portal-service/internal/domain"
)

// ContractRepository はデータアクセスのインターフェース。
type ContractRepository interface {
	Create(ctx context.Context, contract *domain.Contract) error
	FindByID(ctx context.Context, tenantID, id string) (*domain.Contract, error)
	List(ctx context.Context, tenantID string, filter domain.ContractFilter) ([]*domain.Contract, int64, error)
	Save(ctx context.Context, contract *domain.Contract) error
	Delete(ctx context.Context, tenantID, id string) error
	FindExpiring(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Contract, error)
	CountAll(ctx context.Context, tenantID string) (int64, error)
	CountByStatus(ctx context.Context, tenantID string) ([]domain.StatusCount, error)
	CountByType(ctx context.Context, tenantID string) ([]domain.TypeCount, error)
}

// HistoryRepository は変更履歴アクセスのインターフェース。
type HistoryRepository interface {
	Create(ctx context.Context, history *domain.ContractHistory) error
	FindByContractID(ctx context.Context, contractID string) ([]*domain.ContractHistory, error)
}

// FieldCipher は金額フィールド暗号化のインターフェース。
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

// AmountPatch は更新リクエストにおける金額フィールドの三値状態を表す。
// Present=false は変更なし、Present=true かつ Value=nil はクリア（NULL化）。
type AmountPatch struct {
	Present bool
	Value   *decimal.Decimal
}

// CreateContractInput は契約作成の入力を表す。
type CreateContractInput struct {
	Title             string
	ContractNumber    string
	ContractType      string
	PartyA            string
	PartyB            string
	PartyBContact     *domain.PartyContact
	StartDate         time.Time
	EndDate           *time.Time
	Currency          string
	PaymentTerms      string
	Status            string
	AutoRenewal       bool
	RenewalNoticeDays int
	Description       string
	Memo              string
	ParentContractID  string
	InternalManagerID string
	PaymentCycle      string
	VatIncluded       *bool

	// 平文金額。保存前に暗号化され、平文は永続化されない。
	Amount                 *decimal.Decimal
	PurchasePrice          *decimal.Decimal
	PurchaseCommissionRate *decimal.Decimal
	SellingPrice           *decimal.Decimal
	HasPartner             bool
	PartnerName            string
	CommissionType         string
	PartnerCommission      *decimal.Decimal

	NotifyBefore30Days *bool
	NotifyBefore7Days  *bool
	NotifyOnExpiry     *bool
}

// UpdateContractInput は契約更新の入力を表す。nilのフィールドは変更しない。
type UpdateContractInput struct {
	Title             *string
	ContractNumber    *string
	ContractType      *string
	PartyA            *string
	PartyB            *string
	PartyBContact     *domain.PartyContact
	StartDate         *time.Time
	EndDate           *time.Time
	ClearEndDate      bool
	Currency          *string
	PaymentTerms      *string
	AutoRenewal       *bool
	RenewalNoticeDays *int
	Description       *string
	Memo              *string
	InternalManagerID *string
	PaymentCycle      *string
	VatIncluded       *bool

	Amount                 AmountPatch
	PurchasePrice          AmountPatch
	PurchaseCommissionRate *decimal.Decimal
	SellingPrice           AmountPatch
	HasPartner             *bool
	PartnerName            *string
	CommissionType         *string
	PartnerCommission      *decimal.Decimal

	NotifyBefore30Days *bool
	NotifyBefore7Days  *bool
	NotifyOnExpiry     *bool
}

// ContractPage は一覧取得の結果を表す。
type ContractPage struct {
	Items      []*domain.Contract
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// Dashboard は契約ダッシュボード（統計）を表す。
type Dashboard struct {
	Total        int64
	ByStatus     []domain.StatusCount
	ByType       []domain.TypeCount
	ExpiringIn30 int
	ExpiringIn7  int
}

// ContractService は契約に関するビジネスロジックを提供する。
type ContractService struct {
	repo    ContractRepository
	history HistoryRepository
	cipher  FieldCipher
}

// NewContractService は新しいContractServiceを生成する。
func NewContractService(repo ContractRepository, history HistoryRepository, cipher FieldCipher) *ContractService {
	return &ContractService{
		repo:    repo,
		history: history,
		cipher:  cipher,
	}
}

// encryptAmount は平文金額を暗号化する。nilの場合は空文字（NULL相当）を返す。
func (s *ContractService) encryptAmount(v *decimal.Decimal) (string, error) {
	if v == nil {
		return "", nil
	}
	if v.IsNegative() {
		return "", domain.ErrNegativeAmount
	}
	return s.cipher.Encrypt(v.String())
}

// decryptAmount は暗号文を復号しdecimalに変換する。空文字の場合はnilを返す。
// 復号・変換の失敗はエラーとして伝播する。0やnilへの黙った置き換えはしない。
func (s *ContractService) decryptAmount(stored string) (*decimal.Decimal, error) {
	if stored == "" {
		return nil, nil
	}
	plaintext, err := s.cipher.Decrypt(stored)
	if err != nil {
		return nil, err
	}
	v, err := decimal.NewFromString(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypted value is not a decimal", domain.ErrDecryptFailed)
	}
	return &v, nil
}

func derefDecimal(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}

// Create は契約を作成する。金額フィールドは暗号化してから保存する。
func (s *ContractService) Create(ctx context.Context, tenantID, userID string, input CreateContractInput) (*domain.Contract, error) {
	contractType := domain.ContractType(input.ContractType)
	if !contractType.Valid() {
		return nil, domain.ErrInvalidContractType
	}

	status := domain.ContractStatusDraft
	if input.Status != "" {
		status = domain.ContractStatus(input.Status)
		if !status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
	}

	commissionType, err := domain.ParseCommissionType(input.CommissionType)
	if err != nil {
		return nil, err
	}

	if input.PurchaseCommissionRate != nil && input.PurchaseCommissionRate.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}
	if input.PartnerCommission != nil && input.PartnerCommission.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}

	amountEncrypted, err := s.encryptAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	purchaseEncrypted, err := s.encryptAmount(input.PurchasePrice)
	if err != nil {
		return nil, err
	}
	sellingEncrypted, err := s.encryptAmount(input.SellingPrice)
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = "KRW"
	}

	contract := &domain.Contract{
		TenantID:          tenantID,
		Title:             input.Title,
		ContractNumber:    input.ContractNumber,
		ContractType:      contractType,
		PartyA:            input.PartyA,
		PartyB:            input.PartyB,
		PartyBContact:     input.PartyBContact,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		Currency:          currency,
		PaymentTerms:      input.PaymentTerms,
		Status:            status,
		AutoRenewal:       input.AutoRenewal,
		RenewalNoticeDays: input.RenewalNoticeDays,
		Description:       input.Description,
		Memo:              input.Memo,
		ParentContractID:  input.ParentContractID,
		CreatedBy:         userID,
		InternalManagerID: input.InternalManagerID,
		PaymentCycle:      input.PaymentCycle,
		VatIncluded:       boolOrDefault(input.VatIncluded, true),

		AmountEncrypted:        amountEncrypted,
		PurchasePriceEncrypted: purchaseEncrypted,
		SellingPriceEncrypted:  sellingEncrypted,
		PurchaseCommissionRate: derefDecimal(input.PurchaseCommissionRate),
		HasPartner:             input.HasPartner,
		PartnerName:            input.PartnerName,
		PartnerCommissionType:  commissionType,
		PartnerCommission:      derefDecimal(input.PartnerCommission),

		NotifyBefore30Days: boolOrDefault(input.NotifyBefore30Days, true),
		NotifyBefore7Days:  boolOrDefault(input.NotifyBefore7Days, true),
		NotifyOnExpiry:     boolOrDefault(input.NotifyOnExpiry, false),
	}

	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, fmt.Errorf("creating contract: %w", err)
	}

	s.recordHistory(ctx, contract.ID, domain.HistoryActionCreated, nil, sanitizeSnapshot(contract), userID)

	return contract, nil
}

// Get は契約を取得し、金額フィールドを復号してマージンを算出する。
// 復号に失敗した場合はエラーを返す（黙って0にしない）。
func (s *ContractService) Get(ctx context.Context, tenantID, id string) (*domain.DecryptedContract, error) {
	contract, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}

	amount, err := s.decryptAmount(contract.AmountEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting amount: %w", err)
	}
	purchasePrice, err := s.decryptAmount(contract.PurchasePriceEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting purchase price: %w", err)
	}
	sellingPrice, err := s.decryptAmount(contract.SellingPriceEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting selling price: %w", err)
	}

	finance := domain.ComputeFinance(domain.FinanceInputs{
		PurchasePrice:          derefDecimal(purchasePrice),
		PurchaseCommissionRate: contract.PurchaseCommissionRate,
		SellingPrice:           derefDecimal(sellingPrice),
		HasPartner:             contract.HasPartner,
		CommissionType:         contract.PartnerCommissionType,
		PartnerCommission:      contract.PartnerCommission,
	})

	return &domain.DecryptedContract{
		Contract:      *contract,
		Amount:        amount,
		PurchasePrice: purchasePrice,
		SellingPrice:  sellingPrice,
		Finance:       finance,
	}, nil
}

// GetRecord は契約を金額の復号なしで取得する。
// 金額閲覧権限のない利用者への応答に使う。
func (s *ContractService) GetRecord(ctx context.Context, tenantID, id string) (*domain.Contract, error) {
	contract, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}
	return contract, nil
}

// List は絞り込み条件付きで契約一覧を取得する。金額は復号しない。
func (s *ContractService) List(ctx context.Context, tenantID string, filter domain.ContractFilter) (*ContractPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	items, total, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %w", err)
	}

	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &ContractPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// Update は契約を更新する。金額フィールドは入力に含まれる場合のみ
// 暗号文を置き換える（既存の暗号文をインプレースで変更することはない）。
func (s *ContractService) Update(ctx context.Context, tenantID, id, userID string, input UpdateContractInput) (*domain.Contract, error) {
	contract, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}

	previous := sanitizeSnapshot(contract)

	if input.Title != nil {
		contract.Title = *input.Title
	}
	if input.ContractNumber != nil {
		contract.ContractNumber = *input.ContractNumber
	}
	if input.ContractType != nil {
		contractType := domain.ContractType(*input.ContractType)
		if !contractType.Valid() {
			return nil, domain.ErrInvalidContractType
		}
		contract.ContractType = contractType
	}
	if input.PartyA != nil {
		contract.PartyA = *input.PartyA
	}
	if input.PartyB != nil {
		contract.PartyB = *input.PartyB
	}
	if input.PartyBContact != nil {
		contract.PartyBContact = input.PartyBContact
	}
	if input.StartDate != nil {
		contract.StartDate = *input.StartDate
	}
	if input.ClearEndDate {
		contract.EndDate = nil
	} else if input.EndDate != nil {
		contract.EndDate = input.EndDate
	}
	if input.Currency != nil {
		contract.Currency = *input.Currency
	}
	if input.PaymentTerms != nil {
		contract.PaymentTerms = *input.PaymentTerms
	}
	if input.AutoRenewal != nil {
		contract.AutoRenewal = *input.AutoRenewal
	}
	if input.RenewalNoticeDays != nil {
		contract.RenewalNoticeDays = *input.RenewalNoticeDays
	}
	if input.Description != nil {
		contract.Description = *input.Description
	}
	if input.Memo != nil {
		contract.Memo = *input.Memo
	}
	if input.InternalManagerID != nil {
		contract.InternalManagerID = *input.InternalManagerID
	}
	if input.PaymentCycle != nil {
		contract.PaymentCycle = *input.PaymentCycle
	}
	if input.VatIncluded != nil {
		contract.VatIncluded = *input.VatIncluded
	}

	if input.Amount.Present {
		encrypted, err := s.encryptAmount(input.Amount.Value)
		if err != nil {
			return nil, err
		}
		contract.AmountEncrypted = encrypted
	}
	if input.PurchasePrice.Present {
		encrypted, err := s.encryptAmount(input.PurchasePrice.Value)
		if err != nil {
			return nil, err
		}
		contract.PurchasePriceEncrypted = encrypted
	}
	if input.SellingPrice.Present {
		encrypted, err := s.encryptAmount(input.SellingPrice.Value)
		if err != nil {
			return nil, err
		}
		contract.SellingPriceEncrypted = encrypted
	}
	if input.PurchaseCommissionRate != nil {
		if input.PurchaseCommissionRate.IsNegative() {
			return nil, domain.ErrNegativeAmount
		}
		contract.PurchaseCommissionRate = *input.PurchaseCommissionRate
	}
	if input.HasPartner != nil {
		contract.HasPartner = *input.HasPartner
	}
	if input.PartnerName != nil {
		contract.PartnerName = *input.PartnerName
	}
	if input.CommissionType != nil {
		commissionType, err := domain.ParseCommissionType(*input.CommissionType)
		if err != nil {
			return nil, err
		}
		contract.PartnerCommissionType = commissionType
	}
	if input.PartnerCommission != nil {
		if input.PartnerCommission.IsNegative() {
			return nil, domain.ErrNegativeAmount
		}
		contract.PartnerCommission = *input.PartnerCommission
	}

	if input.NotifyBefore30Days != nil {
		contract.NotifyBefore30Days = *input.NotifyBefore30Days
	}
	if input.NotifyBefore7Days != nil {
		contract.NotifyBefore7Days = *input.NotifyBefore7Days
	}
	if input.NotifyOnExpiry != nil {
		contract.NotifyOnExpiry = *input.NotifyOnExpiry
	}

	if err := s.repo.Save(ctx, contract); err != nil {
		return nil, fmt.Errorf("saving contract: %w", err)
	}

	s.recordHistory(ctx, contract.ID, domain.HistoryActionUpdated, previous, sanitizeSnapshot(contract), userID)

	return contract, nil
}

// Delete は契約を削除する。
func (s *ContractService) Delete(ctx context.Context, tenantID, id string) error {
	contract, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return domain.ErrContractNotFound
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("deleting contract: %w", err)
	}
	return nil
}

// UpdateStatus は契約ステータスを変更する。
func (s *ContractService) UpdateStatus(ctx context.Context, tenantID, id, userID string, status domain.ContractStatus) (*domain.Contract, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	contract, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}

	previous := sanitizeSnapshot(contract)
	contract.Status = status

	if err := s.repo.Save(ctx, contract); err != nil {
		return nil, fmt.Errorf("saving contract: %w", err)
	}

	action := domain.HistoryActionUpdated
	if status == domain.ContractStatusTerminated {
		action = domain.HistoryActionTerminated
	}
	s.recordHistory(ctx, contract.ID, action, previous, sanitizeSnapshot(contract), userID)

	return contract, nil
}

// Renew は契約を更新（リニューアル）する。元契約をrenewedにし、
// 元契約を親とする新しいdraft契約を作成する。暗号文はそのまま引き継ぐ。
func (s *ContractService) Renew(ctx context.Context, tenantID, id, userID string) (*domain.Contract, error) {
	original, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if original == nil {
		return nil, domain.ErrContractNotFound
	}
	if original.Status == domain.ContractStatusRenewed {
		return nil, domain.ErrContractAlreadyRenewed
	}

	original.Status = domain.ContractStatusRenewed
	if err := s.repo.Save(ctx, original); err != nil {
		return nil, fmt.Errorf("saving original contract: %w", err)
	}
	s.recordHistory(ctx, original.ID, domain.HistoryActionRenewed, nil,
		map[string]interface{}{"status": string(domain.ContractStatusRenewed)}, userID)

	// 新契約: 元契約の内容を引き継ぎ、IDとタイムスタンプは新規採番
	renewed := *original
	renewed.ID = ""
	renewed.ParentContractID = original.ID
	renewed.Status = domain.ContractStatusDraft
	renewed.CreatedBy = userID
	renewed.CreatedAt = time.Time{}
	renewed.UpdatedAt = time.Time{}

	if err := s.repo.Create(ctx, &renewed); err != nil {
		return nil, fmt.Errorf("creating renewed contract: %w", err)
	}
	s.recordHistory(ctx, renewed.ID, domain.HistoryActionCreated, nil, sanitizeSnapshot(&renewed), userID)

	return &renewed, nil
}

// GetExpiring は指定日数以内に満了するアクティブな契約を取得する。
func (s *ContractService) GetExpiring(ctx context.Context, tenantID string, days int) ([]*domain.Contract, error) {
	now := time.Now()
	contracts, err := s.repo.FindExpiring(ctx, tenantID, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("finding expiring contracts: %w", err)
	}
	return contracts, nil
}

// GetDashboard は契約統計（総数・ステータス別・種別別・満了予定数）を取得する。
func (s *ContractService) GetDashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	total, err := s.repo.CountAll(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting contracts: %w", err)
	}

	byStatus, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}

	byType, err := s.repo.CountByType(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting by type: %w", err)
	}

	expiring30, err := s.GetExpiring(ctx, tenantID, 30)
	if err != nil {
		return nil, err
	}
	expiring7, err := s.GetExpiring(ctx, tenantID, 7)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Total:        total,
		ByStatus:     byStatus,
		ByType:       byType,
		ExpiringIn30: len(expiring30),
		ExpiringIn7:  len(expiring7),
	}, nil
}

// GetHistory は契約の変更履歴を取得する。
func (s *ContractService) GetHistory(ctx context.Context, tenantID, contractID string) ([]*domain.ContractHistory, error) {
	contract, err := s.repo.FindByID(ctx, tenantID, contractID)
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	if contract == nil {
		return nil, domain.ErrContractNotFound
	}
	return s.history.FindByContractID(ctx, contractID)
}

// ExpiryNotifications は通知設定に基づき、期限通知の対象契約を算出する。
// 各契約につき最も差し迫った通知種別を1件返す:
// 満了日当日（NotifyOnExpiry）、残り7日以内（NotifyBefore7Days）、
// 残り30日以内（NotifyBefore30Days）。
func (s *ContractService) ExpiryNotifications(ctx context.Context, tenantID string, now time.Time) ([]domain.ExpiryNotice, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	contracts, err := s.repo.FindExpiring(ctx, tenantID, today, today.AddDate(0, 0, 30))
	if err != nil {
		return nil, fmt.Errorf("finding expiring contracts: %w", err)
	}

	var notices []domain.ExpiryNotice
	for _, c := range contracts {
		if c.EndDate == nil {
			continue
		}
		end := time.Date(c.EndDate.Year(), c.EndDate.Month(), c.EndDate.Day(), 0, 0, 0, 0, today.Location())
		daysLeft := int(end.Sub(today).Hours() / 24)
		if daysLeft < 0 {
			continue
		}

		var kind domain.ExpiryNoticeKind
		switch {
		case daysLeft == 0 && c.NotifyOnExpiry:
			kind = domain.ExpiryNoticeOnDay
		case daysLeft <= 7 && c.NotifyBefore7Days:
			kind = domain.ExpiryNotice7Days
		case daysLeft <= 30 && c.NotifyBefore30Days:
			kind = domain.ExpiryNotice30Days
		default:
			continue
		}

		notices = append(notices, domain.ExpiryNotice{
			Contract: *c,
			Kind:     kind,
			DaysLeft: daysLeft,
		})
	}
	return notices, nil
}

// recordHistory は変更履歴を記録する。履歴の記録失敗は本体の操作を妨げない。
func (s *ContractService) recordHistory(ctx context.Context, contractID string, action domain.HistoryAction, previous, next map[string]interface{}, userID string) {
	history := &domain.ContractHistory{
		ContractID:   contractID,
		Action:       action,
		PreviousData: previous,
		NewData:      next,
		ChangedBy:    userID,
		ChangedAt:    time.Now(),
	}
	// 記録失敗はリポジトリ側でログ済み
	_ = s.history.Create(ctx, history)
}

// sanitizeSnapshot は履歴スナップショット用に契約データを整形する。
// 暗号文フィールドは含めない。
func sanitizeSnapshot(c *domain.Contract) map[string]interface{} {
	snapshot := map[string]interface{}{
		"title":           c.Title,
		"contract_number": c.ContractNumber,
		"contract_type":   string(c.ContractType),
		"party_a":         c.PartyA,
		"party_b":         c.PartyB,
		"start_date":      c.StartDate.Format("2006-01-02"),
		"currency":        c.Currency,
		"status":          string(c.Status),
		"auto_renewal":    c.AutoRenewal,
		"has_partner":     c.HasPartner,
		"partner_name":    c.PartnerName,
	}
	if c.EndDate != nil {
		snapshot["end_date"] = c.EndDate.Format("2006-01-02")
	}
	if c.PartnerCommissionType != "" {
		snapshot["commission_type"] = string(c.PartnerCommissionType)
	}
	return snapshot
}

func boolOrDefault(v *bool, defaultVal bool) bool {
	if v == nil {
		return defaultVal
	}
	return *v
}
