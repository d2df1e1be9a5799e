package sales

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CreditDecision is the outcome of a credit check.
type CreditDecision struct {
	Approved        bool            `json:"approved"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	Message         string          `json:"message"`
}

// CreditChecker decides whether a customer may take on more exposure.
type CreditChecker interface {
	CheckCreditLimit(ctx context.Context, customerID int64, amount decimal.Decimal) (CreditDecision, error)
}

// CreditRepository reads what the credit manager needs.
type CreditRepository interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	// CustomerExposure sums uninvoiced open orders and unpaid invoice balances.
	CustomerExposure(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// CreditManager enforces customer credit limits.
type CreditManager struct {
	repo CreditRepository
}

// NewCreditManager constructs CreditManager.
func NewCreditManager(repo CreditRepository) *CreditManager {
	return &CreditManager{repo: repo}
}

// CheckCreditLimit approves amount when it fits in the customer's limit minus
// outstanding exposure. A zero limit is unlimited.
func (m *CreditManager) CheckCreditLimit(ctx context.Context, customerID int64, amount decimal.Decimal) (CreditDecision, error) {
	customer, err := m.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return CreditDecision{}, err
	}
	if customer.CreditLimit.IsZero() {
		return CreditDecision{Approved: true, AvailableCredit: decimal.Zero, Message: "unlimited credit"}, nil
	}
	exposure, err := m.repo.CustomerExposure(ctx, customerID)
	if err != nil {
		return CreditDecision{}, fmt.Errorf("sales: credit exposure: %w", err)
	}
	available := customer.CreditLimit.Sub(exposure)
	if amount.GreaterThan(available) {
		return CreditDecision{
			Approved:        false,
			AvailableCredit: available,
			Message:         fmt.Sprintf("order total %s exceeds available credit %s", amount.StringFixed(2), available.StringFixed(2)),
		}, nil
	}
	return CreditDecision{Approved: true, AvailableCredit: available.Sub(amount), Message: "approved"}, nil
}
