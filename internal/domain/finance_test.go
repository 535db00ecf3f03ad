package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func assertDecimalEqual(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: want %s, got %s", name, want, got)
	}
}

func TestComputeFinance_PurchaseCommission(t *testing.T) {
	// 購買単価100万・購買コミッション10%・販売単価150万・パートナーなし
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:          d("1000000"),
		PurchaseCommissionRate: d("10"),
		SellingPrice:           d("1500000"),
	})

	assertDecimalEqual(t, "actualPurchasePrice", got.ActualPurchasePrice, d("1100000"))
	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, d("1500000"))
	assertDecimalEqual(t, "actualMarginAmount", got.ActualMarginAmount, d("400000"))

	// 33.33…% / 26.66…% — 表示用に丸めた値で比較する
	if got.BaseMarginRate.Round(2).String() != "33.33" {
		t.Errorf("baseMarginRate: want 33.33, got %s", got.BaseMarginRate.Round(2))
	}
	if got.ActualMarginRate.Round(2).String() != "26.67" {
		t.Errorf("actualMarginRate: want 26.67, got %s", got.ActualMarginRate.Round(2))
	}
}

func TestComputeFinance_PartnerPercentageCommission(t *testing.T) {
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:          d("1000000"),
		PurchaseCommissionRate: d("10"),
		SellingPrice:           d("1500000"),
		HasPartner:             true,
		CommissionType:         CommissionTypePercentage,
		PartnerCommission:      d("20"),
	})

	// 150万 × (1 - 0.20) = 120万
	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, d("1200000"))
	assertDecimalEqual(t, "actualMarginAmount", got.ActualMarginAmount, d("100000"))
	if got.ActualMarginRate.Round(2).String() != "8.33" {
		t.Errorf("actualMarginRate: want 8.33, got %s", got.ActualMarginRate.Round(2))
	}
}

func TestComputeFinance_PartnerFixedCommissionLoss(t *testing.T) {
	// 固定コミッションで損失になるケース。負のマージン額はそのまま保持する。
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:     d("1000000"),
		SellingPrice:      d("900000"),
		HasPartner:        true,
		CommissionType:    CommissionTypeFixed,
		PartnerCommission: d("200000"),
	})

	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, d("700000"))
	assertDecimalEqual(t, "actualMarginAmount", got.ActualMarginAmount, d("-300000"))
	if !got.ActualMarginAmount.IsNegative() {
		t.Error("loss must be preserved as negative, not clamped")
	}
}

func TestComputeFinance_PartnerIgnoredWhenCommissionZero(t *testing.T) {
	// hasPartner=trueでもコミッションが0なら控除しない
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:  d("1000000"),
		SellingPrice:   d("1500000"),
		HasPartner:     true,
		CommissionType: CommissionTypePercentage,
	})
	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, d("1500000"))
}

func TestComputeFinance_NoPartnerIgnoresCommission(t *testing.T) {
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:     d("1000000"),
		SellingPrice:      d("1500000"),
		HasPartner:        false,
		CommissionType:    CommissionTypeFixed,
		PartnerCommission: d("500000"),
	})
	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, d("1500000"))
}

func TestComputeFinance_ZeroGuards(t *testing.T) {
	tests := []struct {
		name          string
		purchasePrice string
		sellingPrice  string
	}{
		{"both zero", "0", "0"},
		{"purchase zero", "0", "1500000"},
		{"selling zero", "1000000", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFinance(FinanceInputs{
				PurchasePrice: d(tt.purchasePrice),
				SellingPrice:  d(tt.sellingPrice),
			})
			// ゼロ除算を起こさず、マージン率は0になること
			assertDecimalEqual(t, "baseMarginRate", got.BaseMarginRate, decimal.Zero)
		})
	}
}

func TestComputeFinance_SellingZeroActualMarginRate(t *testing.T) {
	// 実質販売単価が0以下の場合も実質マージン率は0
	got := ComputeFinance(FinanceInputs{
		PurchasePrice:     d("1000000"),
		SellingPrice:      d("200000"),
		HasPartner:        true,
		CommissionType:    CommissionTypeFixed,
		PartnerCommission: d("200000"),
	})
	assertDecimalEqual(t, "actualSellingPrice", got.ActualSellingPrice, decimal.Zero)
	assertDecimalEqual(t, "actualMarginRate", got.ActualMarginRate, decimal.Zero)
	assertDecimalEqual(t, "actualMarginAmount", got.ActualMarginAmount, d("-1000000"))
}

func TestComputeFinance_Deterministic(t *testing.T) {
	in := FinanceInputs{
		PurchasePrice:          d("123456.78"),
		PurchaseCommissionRate: d("2.5"),
		SellingPrice:           d("234567.89"),
		HasPartner:             true,
		CommissionType:         CommissionTypePercentage,
		PartnerCommission:      d("7.5"),
	}

	first := ComputeFinance(in)
	for i := 0; i < 10; i++ {
		again := ComputeFinance(in)
		if !again.ActualMarginRate.Equal(first.ActualMarginRate) ||
			!again.ActualMarginAmount.Equal(first.ActualMarginAmount) {
			t.Fatal("same inputs produced different outputs")
		}
	}
}

func TestParseCommissionType(t *testing.T) {
	tests := []struct {
		in      string
		want    CommissionType
		wantErr bool
	}{
		{"percentage", CommissionTypePercentage, false},
		{"fixed", CommissionTypeFixed, false},
		{"amount", CommissionTypeFixed, false},
		{"", CommissionTypePercentage, false},
		{"PERCENTAGE", "", true},
		{"ratio", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCommissionType(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCommissionType) {
				t.Errorf("ParseCommissionType(%q): want ErrInvalidCommissionType, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCommissionType(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommissionType(%q): want %s, got %s", tt.in, tt.want, got)
		}
	}
}
