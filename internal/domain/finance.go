package domain

import "github.com/shopspring/decimal"

// CommissionType はパートナーコミッションの方式を表す。
type CommissionType string

const (
	// CommissionTypePercentage は販売価格に対する割合（%）でのコミッション。
	CommissionTypePercentage CommissionType = "percentage"
	// CommissionTypeFixed は固定金額でのコミッション。
	CommissionTypeFixed CommissionType = "fixed"
)

// ParseCommissionType は文字列からCommissionTypeを解釈する。
// 旧システム由来の "amount" は "fixed" の別名として受理する。
// 空文字はコミッション方式未設定としてpercentageを返す（計算上はhasPartner=false
// またはpartnerCommission=0で無効化されるため値に影響しない）。
func ParseCommissionType(s string) (CommissionType, error) {
	switch s {
	case "", string(CommissionTypePercentage):
		return CommissionTypePercentage, nil
	case string(CommissionTypeFixed), "amount":
		return CommissionTypeFixed, nil
	}
	return "", ErrInvalidCommissionType
}

// FinanceInputs はマージン計算の入力を表す。
// 未入力の数値フィールドはゼロ値（decimal.Zero）として扱う。
type FinanceInputs struct {
	PurchasePrice          decimal.Decimal
	PurchaseCommissionRate decimal.Decimal
	SellingPrice           decimal.Decimal
	HasPartner             bool
	CommissionType         CommissionType
	PartnerCommission      decimal.Decimal
}

// FinanceDerived はマージン計算の算出結果を表す。永続化されない。
type FinanceDerived struct {
	ActualPurchasePrice decimal.Decimal
	ActualSellingPrice  decimal.Decimal
	BaseMarginRate      decimal.Decimal
	ActualMarginRate    decimal.Decimal
	ActualMarginAmount  decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ComputeFinance は購買・販売単価とパートナーコミッション設定から
// 実質単価とマージンを算出する。純粋関数であり、非負の入力に対して
// 常に結果を返す（エラーも例外もない）。
//
// マージン率の分母は販売価格。purchasePriceが0（原価未入力）の場合、
// および分母となる販売価格が0の場合はマージン率を0とする。
// マージン額は負値（損失）をそのまま保持する。
func ComputeFinance(in FinanceInputs) FinanceDerived {
	// 実質購買単価 = 購買単価 × (1 + 購買コミッション率/100)
	actualPurchase := in.PurchasePrice.Mul(one.Add(in.PurchaseCommissionRate.Div(hundred)))

	// 実質販売単価: パートナーコミッション控除後
	actualSelling := in.SellingPrice
	if in.HasPartner && in.PartnerCommission.IsPositive() {
		if in.CommissionType == CommissionTypePercentage {
			actualSelling = in.SellingPrice.Mul(one.Sub(in.PartnerCommission.Div(hundred)))
		} else {
			actualSelling = in.SellingPrice.Sub(in.PartnerCommission)
		}
	}

	baseMarginRate := decimal.Zero
	if in.PurchasePrice.IsPositive() && !in.SellingPrice.IsZero() {
		baseMarginRate = in.SellingPrice.Sub(in.PurchasePrice).Div(in.SellingPrice).Mul(hundred)
	}

	actualMarginRate := decimal.Zero
	if actualSelling.IsPositive() {
		actualMarginRate = actualSelling.Sub(actualPurchase).Div(actualSelling).Mul(hundred)
	}

	return FinanceDerived{
		ActualPurchasePrice: actualPurchase,
		ActualSellingPrice:  actualSelling,
		BaseMarginRate:      baseMarginRate,
		ActualMarginRate:    actualMarginRate,
		ActualMarginAmount:  actualSelling.Sub(actualPurchase),
	}
}
