package domain

import "github.com/shopspring/decimal"

// Breakdown is the seller settlement statement. It is derived on demand
// from the Sale snapshot and never stored.
type Breakdown struct {
	CarPrice           decimal.Decimal `json:"car_price"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	CommissionVAT      decimal.Decimal `json:"commission_vat"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	ServiceFeesTotal   decimal.Decimal `json:"service_fees_total"`
	ServiceFees        []FeeItem       `json:"service_fees"`
	Deductions         []FeeItem       `json:"deductions"`
	TotalDeductions    decimal.Decimal `json:"total_deductions"`
	NetPayout          decimal.Decimal `json:"net_payout"`
}

// ComputeBreakdown is a pure function of the Sale snapshot. Partner sellers
// are exempt from commission and from all seller-side deductions, so for
// them net payout equals the car price.
func ComputeBreakdown(s Sale) Breakdown {
	commission := decimal.Zero
	if !s.PartnerSeller {
		commission = s.CarPrice.Mul(s.CommissionRate)
	}
	vat := commission.Mul(s.VATRate)

	deductions := decimal.Zero
	if !s.PartnerSeller {
		deductions = commission.Add(vat).Add(SumFeeItems(s.Deductions))
	}

	return Breakdown{
		CarPrice:           s.CarPrice,
		PlatformCommission: commission,
		CommissionVAT:      vat,
		NetProfit:          commission.Sub(s.PartnerIncentive),
		ServiceFeesTotal:   SumFeeItems(s.ServiceFees),
		ServiceFees:        s.ServiceFees,
		Deductions:         s.Deductions,
		TotalDeductions:    deductions,
		NetPayout:          s.CarPrice.Sub(deductions),
	}
}
