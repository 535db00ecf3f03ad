// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"contract-portal-service/internal/domain"
)

// ContractModel はgorm用のモデル定義。
// 金額カラム（*_encrypted）は不透明な暗号文テキストであり、
// SQL側でのフィルタ・ソート対象にしてはならない。
type ContractModel struct {
	ID                string     `gorm:"type:char(36);primaryKey"`
	TenantID          string     `gorm:"type:varchar(64);not null;index:idx_tenant_status;index:idx_tenant_end_date;index:idx_tenant_type"`
	Title             string     `gorm:"type:varchar(255);not null"`
	ContractNumber    string     `gorm:"type:varchar(100)"`
	ContractType      string     `gorm:"type:varchar(20);not null;index:idx_tenant_type"`
	PartyA            string     `gorm:"type:varchar(255);not null"`
	PartyB            string     `gorm:"type:varchar(255);not null"`
	PartyBContact     string     `gorm:"type:text"`
	StartDate         time.Time  `gorm:"type:date;not null"`
	EndDate           *time.Time `gorm:"type:date;index:idx_tenant_end_date"`
	Currency          string     `gorm:"type:varchar(10);default:'KRW'"`
	PaymentTerms      string     `gorm:"type:text"`
	Status            string     `gorm:"type:varchar(20);not null;default:'draft';index:idx_tenant_status"`
	AutoRenewal       bool       `gorm:"not null;default:false"`
	RenewalNoticeDays int        `gorm:"default:0"`
	Description       string     `gorm:"type:text"`
	Memo              string     `gorm:"type:text"`
	ParentContractID  string     `gorm:"type:char(36)"`
	CreatedBy         string     `gorm:"type:char(36);not null"`
	InternalManagerID string     `gorm:"type:char(36)"`

	PaymentCycle string `gorm:"type:varchar(20)"`
	VatIncluded  bool   `gorm:"not null;default:true"`

	AmountEncrypted        string          `gorm:"type:text"`
	PurchasePriceEncrypted string          `gorm:"type:text"`
	SellingPriceEncrypted  string          `gorm:"type:text"`
	PurchaseCommissionRate decimal.Decimal `gorm:"type:decimal(5,2);default:0"`
	HasPartner             bool            `gorm:"not null;default:false"`
	PartnerName            string          `gorm:"type:varchar(200)"`
	CommissionType         string          `gorm:"type:varchar(20)"`
	PartnerCommission      decimal.Decimal `gorm:"type:decimal(15,2);default:0"`

	// gormの命名規則は数字の前のアンダースコアを落とすため、カラム名を明示する
	NotifyBefore30Days bool `gorm:"column:notify_before_30_days;not null;default:true"`
	NotifyBefore7Days  bool `gorm:"column:notify_before_7_days;not null;default:true"`
	NotifyOnExpiry     bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ContractModel) TableName() string {
	return "contracts"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (c *ContractModel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (c *ContractModel) toDomain() *domain.Contract {
	contract := &domain.Contract{
		ID:                c.ID,
		TenantID:          c.TenantID,
		Title:             c.Title,
		ContractNumber:    c.ContractNumber,
		ContractType:      domain.ContractType(c.ContractType),
		PartyA:            c.PartyA,
		PartyB:            c.PartyB,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		Currency:          c.Currency,
		PaymentTerms:      c.PaymentTerms,
		Status:            domain.ContractStatus(c.Status),
		AutoRenewal:       c.AutoRenewal,
		RenewalNoticeDays: c.RenewalNoticeDays,
		Description:       c.Description,
		Memo:              c.Memo,
		ParentContractID:  c.ParentContractID,
		CreatedBy:         c.CreatedBy,
		InternalManagerID: c.InternalManagerID,
		PaymentCycle:      c.PaymentCycle,
		VatIncluded:       c.VatIncluded,

		AmountEncrypted:        c.AmountEncrypted,
		PurchasePriceEncrypted: c.PurchasePriceEncrypted,
		SellingPriceEncrypted:  c.SellingPriceEncrypted,
		PurchaseCommissionRate: c.PurchaseCommissionRate,
		HasPartner:             c.HasPartner,
		PartnerName:            c.PartnerName,
		PartnerCommissionType:  domain.CommissionType(c.CommissionType),
		PartnerCommission:      c.PartnerCommission,

		NotifyBefore30Days: c.NotifyBefore30Days,
		NotifyBefore7Days:  c.NotifyBefore7Days,
		NotifyOnExpiry:     c.NotifyOnExpiry,

		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}

	if c.PartyBContact != "" {
		var contact domain.PartyContact
		if err := json.Unmarshal([]byte(c.PartyBContact), &contact); err == nil {
			contract.PartyBContact = &contact
		}
	}

	return contract
}

// fromDomain はドメインエンティティをモデルに変換する。
func fromDomain(contract *domain.Contract) (*ContractModel, error) {
	model := &ContractModel{
		ID:                contract.ID,
		TenantID:          contract.TenantID,
		Title:             contract.Title,
		ContractNumber:    contract.ContractNumber,
		ContractType:      string(contract.ContractType),
		PartyA:            contract.PartyA,
		PartyB:            contract.PartyB,
		StartDate:         contract.StartDate,
		EndDate:           contract.EndDate,
		Currency:          contract.Currency,
		PaymentTerms:      contract.PaymentTerms,
		Status:            string(contract.Status),
		AutoRenewal:       contract.AutoRenewal,
		RenewalNoticeDays: contract.RenewalNoticeDays,
		Description:       contract.Description,
		Memo:              contract.Memo,
		ParentContractID:  contract.ParentContractID,
		CreatedBy:         contract.CreatedBy,
		InternalManagerID: contract.InternalManagerID,
		PaymentCycle:      contract.PaymentCycle,
		VatIncluded:       contract.VatIncluded,

		AmountEncrypted:        contract.AmountEncrypted,
		PurchasePriceEncrypted: contract.PurchasePriceEncrypted,
		SellingPriceEncrypted:  contract.SellingPriceEncrypted,
		PurchaseCommissionRate: contract.PurchaseCommissionRate,
		HasPartner:             contract.HasPartner,
		PartnerName:            contract.PartnerName,
		CommissionType:         string(contract.PartnerCommissionType),
		PartnerCommission:      contract.PartnerCommission,

		NotifyBefore30Days: contract.NotifyBefore30Days,
		NotifyBefore7Days:  contract.NotifyBefore7Days,
		NotifyOnExpiry:     contract.NotifyOnExpiry,
	}

	if contract.PartyBContact != nil {
		data, err := json.Marshal(contract.PartyBContact)
		if err != nil {
			return nil, err
		}
		model.PartyBContact = string(data)
	}

	return model, nil
}

// ソート可能なカラムのホワイトリスト
var allowedSortColumns = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"startDate":      "start_date",
	"endDate":        "end_date",
	"title":          "title",
	"contractNumber": "contract_number",
	"status":         "status",
}

// ContractRepository は契約データアクセスを提供する。
type ContractRepository struct {
	db *gorm.DB
}

// NewContractRepository は新しいContractRepositoryを生成する。
func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create は新しい契約を保存する。
func (r *ContractRepository) Create(ctx context.Context, contract *domain.Contract) error {
	model, err := fromDomain(contract)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create contract",
			"operation", "create",
			"tenant_id", contract.TenantID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	contract.ID = model.ID
	contract.CreatedAt = model.CreatedAt
	contract.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたテナント・IDの契約を取得する。存在しない場合はnilを返す。
func (r *ContractRepository) FindByID(ctx context.Context, tenantID, id string) (*domain.Contract, error) {
	var model ContractModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find contract",
			"operation", "find_by_id",
			"tenant_id", tenantID,
			"contract_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// List は絞り込み条件付きで契約一覧と総件数を取得する。
func (r *ContractRepository) List(ctx context.Context, tenantID string, filter domain.ContractFilter) ([]*domain.Contract, int64, error) {
	q := r.db.WithContext(ctx).Model(&ContractModel{}).Where("tenant_id = ?", tenantID)

	if filter.ContractType != "" {
		q = q.Where("contract_type = ?", filter.ContractType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("title LIKE ? OR contract_number LIKE ? OR party_a LIKE ? OR party_b LIKE ?",
			like, like, like, like)
	}
	if filter.StartDateFrom != nil {
		q = q.Where("start_date >= ?", *filter.StartDateFrom)
	}
	if filter.StartDateTo != nil {
		q = q.Where("start_date <= ?", *filter.StartDateTo)
	}
	if filter.ExpiringWithin > 0 {
		now := time.Now()
		future := now.AddDate(0, 0, filter.ExpiringWithin)
		q = q.Where("end_date IS NOT NULL AND end_date BETWEEN ? AND ?", now, future)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		slog.ErrorContext(ctx, "failed to count contracts",
			"operation", "list",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, 0, err
	}

	// ソート（ホワイトリスト検証）
	column, ok := allowedSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if filter.SortOrder == "ASC" {
		order = "ASC"
	}
	q = q.Order(column + " " + order)

	// ページング
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	q = q.Offset((page - 1) * limit).Limit(limit)

	var models []ContractModel
	if err := q.Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list contracts",
			"operation", "list",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, 0, err
	}

	contracts := make([]*domain.Contract, len(models))
	for i, m := range models {
		contracts[i] = m.toDomain()
	}
	return contracts, total, nil
}

// Save は契約の全フィールドを更新する。
func (r *ContractRepository) Save(ctx context.Context, contract *domain.Contract) error {
	model, err := fromDomain(contract)
	if err != nil {
		return err
	}
	// ゼロ値フィールドも含めて全カラムを更新する
	err = r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Where("tenant_id = ? AND id = ?", contract.TenantID, contract.ID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save contract",
			"operation", "save",
			"tenant_id", contract.TenantID,
			"contract_id", contract.ID,
			"error", err,
		)
		return err
	}
	return nil
}

// Delete は契約と関連する変更履歴を削除する。
func (r *ContractRepository) Delete(ctx context.Context, tenantID, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", id).Delete(&ContractHistoryModel{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&ContractModel{}).Error
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete contract",
			"operation", "delete",
			"tenant_id", tenantID,
			"contract_id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// FindExpiring は指定期間内に満了するアクティブな契約を満了日昇順で取得する。
func (r *ContractRepository) FindExpiring(ctx context.Context, tenantID string, from, to time.Time) ([]*domain.Contract, error) {
	var models []ContractModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND end_date IS NOT NULL AND end_date BETWEEN ? AND ?",
			tenantID, string(domain.ContractStatusActive), from, to).
		Order("end_date ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find expiring contracts",
			"operation", "find_expiring",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	contracts := make([]*domain.Contract, len(models))
	for i, m := range models {
		contracts[i] = m.toDomain()
	}
	return contracts, nil
}

// CountAll は指定されたテナントの契約総数を取得する。
func (r *ContractRepository) CountAll(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count contracts",
			"operation", "count_all",
			"tenant_id", tenantID,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

// CountByStatus はステータス別の契約件数を取得する。
func (r *ContractRepository) CountByStatus(ctx context.Context, tenantID string) ([]domain.StatusCount, error) {
	var counts []domain.StatusCount
	err := r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count contracts by status",
			"operation", "count_by_status",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}
	return counts, nil
}

// CountByType は契約種別別の契約件数を取得する。
func (r *ContractRepository) CountByType(ctx context.Context, tenantID string) ([]domain.TypeCount, error) {
	var counts []domain.TypeCount
	err := r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Select("contract_type AS type, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("contract_type").
		Scan(&counts).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count contracts by type",
			"operation", "count_by_type",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}
	return counts, nil
}
