package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"contract-portal-service/internal/domain"
)

// ContractHistoryModel はgorm用のモデル定義。
// スナップショットカラムには暗号文フィールドを含めない（usecase側で除外済み）。
type ContractHistoryModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	ContractID   string    `gorm:"type:char(36);not null;index:idx_history_contract"`
	Action       string    `gorm:"type:varchar(20);not null"`
	PreviousData string    `gorm:"type:text"`
	NewData      string    `gorm:"type:text"`
	ChangedBy    string    `gorm:"type:char(36);not null"`
	ChangedAt    time.Time `gorm:"type:datetime(6);not null"`
}

// TableName はテーブル名を返す。
func (ContractHistoryModel) TableName() string {
	return "contract_history"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (h *ContractHistoryModel) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

func (h *ContractHistoryModel) toDomain() *domain.ContractHistory {
	history := &domain.ContractHistory{
		ID:         h.ID,
		ContractID: h.ContractID,
		Action:     domain.HistoryAction(h.Action),
		ChangedBy:  h.ChangedBy,
		ChangedAt:  h.ChangedAt,
	}
	if h.PreviousData != "" {
		_ = json.Unmarshal([]byte(h.PreviousData), &history.PreviousData)
	}
	if h.NewData != "" {
		_ = json.Unmarshal([]byte(h.NewData), &history.NewData)
	}
	return history
}

// HistoryRepository は契約変更履歴のデータアクセスを提供する。
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository は新しいHistoryRepositoryを生成する。
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create は変更履歴を保存する。
func (r *HistoryRepository) Create(ctx context.Context, history *domain.ContractHistory) error {
	model := &ContractHistoryModel{
		ID:         history.ID,
		ContractID: history.ContractID,
		Action:     string(history.Action),
		ChangedBy:  history.ChangedBy,
		ChangedAt:  history.ChangedAt,
	}

	if history.PreviousData != nil {
		data, err := json.Marshal(history.PreviousData)
		if err != nil {
			return err
		}
		model.PreviousData = string(data)
	}
	if history.NewData != nil {
		data, err := json.Marshal(history.NewData)
		if err != nil {
			return err
		}
		model.NewData = string(data)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create contract history",
			"operation", "create_history",
			"contract_id", history.ContractID,
			"action", history.Action,
			"error", err,
		)
		return err
	}
	history.ID = model.ID
	return nil
}

// FindByContractID は指定された契約の変更履歴を新しい順で取得する。
func (r *HistoryRepository) FindByContractID(ctx context.Context, contractID string) ([]*domain.ContractHistory, error) {
	var models []ContractHistoryModel
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("changed_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find contract history",
			"operation", "find_by_contract_id",
			"contract_id", contractID,
			"error", err,
		)
		return nil, err
	}

	histories := make([]*domain.ContractHistory, len(models))
	for i, m := range models {
		histories[i] = m.toDomain()
	}
	return histories, nil
}
