// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractStatus は契約のライフサイクルステータスを表す。
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "draft"
	ContractStatusActive     ContractStatus = "active"
	ContractStatusExpired    ContractStatus = "expired"
	ContractStatusTerminated ContractStatus = "terminated"
	ContractStatusRenewed    ContractStatus = "renewed"
	ContractStatusPocDemo    ContractStatus = "poc_demo"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusDraft, ContractStatusActive, ContractStatusExpired,
		ContractStatusTerminated, ContractStatusRenewed, ContractStatusPocDemo:
		return true
	}
	return false
}

// ContractType は契約種別を表す。
type ContractType string

const (
	ContractTypeService     ContractType = "service"
	ContractTypeLicense     ContractType = "license"
	ContractTypeMaintenance ContractType = "maintenance"
	ContractTypeNDA         ContractType = "nda"
	ContractTypeMOU         ContractType = "mou"
	ContractTypeOther       ContractType = "other"
)

// Valid は契約種別が定義済みの値かどうかを返す。
func (t ContractType) Valid() bool {
	switch t {
	case ContractTypeService, ContractTypeLicense, ContractTypeMaintenance,
		ContractTypeNDA, ContractTypeMOU, ContractTypeOther:
		return true
	}
	return false
}

// PartyContact は契約相手方の担当者連絡先を表す。
type PartyContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Contract は契約エンティティを表す。
// 金額・単価は暗号文（EncryptedAmount形式の文字列）としてのみ保持し、
// 平文はDecryptedContract側にのみ現れる。
type Contract struct {
	ID             string
	TenantID       string
	Title          string
	ContractNumber string
	ContractType   ContractType
	PartyA         string
	PartyB         string
	PartyBContact  *PartyContact
	StartDate      time.Time
	EndDate        *time.Time
	Currency       string
	PaymentTerms   string
	Status         ContractStatus
	AutoRenewal    bool
	// RenewalNoticeDays は更新通知の猶予日数。0は未設定を表す。
	RenewalNoticeDays int
	Description       string
	Memo              string
	ParentContractID  string
	CreatedBy         string
	InternalManagerID string

	// 決済情報
	PaymentCycle string
	VatIncluded  bool

	// 金額フィールド（保存時は暗号文のみ）
	AmountEncrypted         string
	PurchasePriceEncrypted  string
	SellingPriceEncrypted   string
	PurchaseCommissionRate  decimal.Decimal
	HasPartner              bool
	PartnerName             string
	PartnerCommissionType   CommissionType
	PartnerCommission       decimal.Decimal

	// 期限通知設定
	NotifyBefore30Days bool
	NotifyBefore7Days  bool
	NotifyOnExpiry     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecryptedContract は復号済み金額と算出済みマージンを含む契約を表す。
// 永続化されず、読み取りのたびに再構築される。
type DecryptedContract struct {
	Contract

	// 復号済み平文金額。対応する暗号文が無い場合はnil。
	Amount        *decimal.Decimal
	PurchasePrice *decimal.Decimal
	SellingPrice  *decimal.Decimal

	// Finance は復号済み入力から算出したマージン情報。
	Finance FinanceDerived
}

// ExpiryNotice は期限通知の対象契約と通知種別を表す。
type ExpiryNotice struct {
	Contract Contract
	// Kind は通知種別（30日前・7日前・満了日）。
	Kind ExpiryNoticeKind
	// DaysLeft は満了日までの残り日数（満了日当日は0）。
	DaysLeft int
}

// ExpiryNoticeKind は期限通知の種別を表す。
type ExpiryNoticeKind string

const (
	ExpiryNotice30Days ExpiryNoticeKind = "before_30_days"
	ExpiryNotice7Days  ExpiryNoticeKind = "before_7_days"
	ExpiryNoticeOnDay  ExpiryNoticeKind = "on_expiry"
)

// ContractFilter は契約一覧取得の絞り込み条件を表す。
type ContractFilter struct {
	ContractType  ContractType
	Status        ContractStatus
	Search        string
	StartDateFrom *time.Time
	StartDateTo   *time.Time
	// ExpiringWithin が正の場合、end_dateが今日からその日数以内の契約に絞る。
	ExpiringWithin int
	SortBy         string
	SortOrder      string
	Page           int
	Limit          int
}

// StatusCount はステータス別件数を表す。
type StatusCount struct {
	Status string
	Count  int64
}

// TypeCount は契約種別別件数を表す。
type TypeCount struct {
	Type  string
	Count int64
}

// HistoryAction は契約変更履歴のアクション種別を表す。
type HistoryAction string

const (
	HistoryActionCreated    HistoryAction = "created"
	HistoryActionUpdated    HistoryAction = "updated"
	HistoryActionRenewed    HistoryAction = "renewed"
	HistoryActionTerminated HistoryAction = "terminated"
)

// ContractHistory は契約の変更履歴を表す。
// PreviousData/NewDataのスナップショットには暗号文フィールドを含めない。
type ContractHistory struct {
	ID           string
	ContractID   string
	Action       HistoryAction
	PreviousData map[string]interface{}
	NewData      map[string]interface{}
	ChangedBy    string
	ChangedAt    time.Time
}
