package services

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"github.com/shopspring/decimal"
)

// MaxTier is the tier from which every further repair costs the same
const MaxTier = 5

// batchOverrideCeiling caps a batch override at this multiple of the calculated total
var batchOverrideCeiling = decimal.NewFromInt(2)

var defaultPriceLadder = [MaxTier]decimal.Decimal{
	decimal.NewFromInt(50),
	decimal.NewFromInt(40),
	decimal.NewFromInt(35),
	decimal.NewFromInt(30),
	decimal.NewFromInt(25),
}

var hundred = decimal.NewFromInt(100)

// DefaultPrice returns the global ladder price for a repair tier
func DefaultPrice(tier int) decimal.Decimal {
	if tier < 1 {
		tier = 1
	}
	if tier > MaxTier {
		tier = MaxTier
	}
	return defaultPriceLadder[tier-1]
}

// TierPrice returns the price of a repair tier for a customer. A custom pricing row only
// takes effect when UseCustomPricing is set, and unset tiers fall back to the default ladder.
func TierPrice(pricing *models.CustomerPricing, tier int) decimal.Decimal {
	if pricing != nil && pricing.UseCustomPricing {
		if override := pricing.TierOverride(tier); override != nil {
			return *override
		}
	}
	return DefaultPrice(tier)
}

// VolumeDiscount is a tier price after the customer's volume discount rule
type VolumeDiscount struct {
	FinalPrice      decimal.Decimal `json:"final_price"`
	DiscountApplied bool            `json:"discount_applied"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
}

// ApplyVolumeDiscount reduces price by the configured percentage once the customer's
// lifetime repair count reaches the threshold.
func ApplyVolumeDiscount(pricing *models.CustomerPricing, price decimal.Decimal, totalCustomerRepairs int64) VolumeDiscount {
	result := VolumeDiscount{FinalPrice: price, DiscountAmount: decimal.Zero}
	if pricing == nil || !pricing.VolumeDiscountPercentage.IsPositive() {
		return result
	}
	if totalCustomerRepairs < int64(pricing.VolumeDiscountThreshold) {
		return result
	}

	discount := utils.RoundMoney(price.Mul(pricing.VolumeDiscountPercentage).Div(hundred))
	result.FinalPrice = price.Sub(discount)
	result.DiscountAmount = discount
	result.DiscountApplied = discount.IsPositive()
	return result
}

// BreakPrice is the price of one break within a batch
type BreakPrice struct {
	BreakNumber int             `json:"break_number"`
	RepairTier  int             `json:"repair_tier"`
	Price       decimal.Decimal `json:"price"`
}

// ProgressivePrices prices breaksCount breaks on a unit that already has baseCount
// completed repairs. Each break is priced one tier above the previous one.
func ProgressivePrices(pricing *models.CustomerPricing, baseCount, breaksCount int) []BreakPrice {
	if breaksCount <= 0 {
		return []BreakPrice{}
	}
	breaks := make([]BreakPrice, 0, breaksCount)
	for i := 0; i < breaksCount; i++ {
		tier := baseCount + i + 1
		breaks = append(breaks, BreakPrice{
			BreakNumber: i + 1,
			RepairTier:  tier,
			Price:       TierPrice(pricing, tier),
		})
	}
	return breaks
}

// BatchTotal summarizes a batch price breakdown
type BatchTotal struct {
	BreakCount     int             `json:"break_count"`
	Total          decimal.Decimal `json:"total"`
	TotalFormatted string          `json:"total_formatted"`
	PriceRange     string          `json:"price_range"`
}

// CalculateBatchTotal sums a breakdown and reports its price range
func CalculateBatchTotal(breaks []BreakPrice) BatchTotal {
	total := decimal.Zero
	if len(breaks) == 0 {
		return BatchTotal{Total: total, TotalFormatted: total.StringFixed(2), PriceRange: utils.FormatMoney(total)}
	}

	minPrice, maxPrice := breaks[0].Price, breaks[0].Price
	for _, b := range breaks {
		total = total.Add(b.Price)
		minPrice = decimal.Min(minPrice, b.Price)
		maxPrice = decimal.Max(maxPrice, b.Price)
	}

	priceRange := utils.FormatMoney(maxPrice)
	if !minPrice.Equal(maxPrice) {
		priceRange = fmt.Sprintf("%s - %s", utils.FormatMoney(maxPrice), utils.FormatMoney(minPrice))
	}

	return BatchTotal{
		BreakCount:     len(breaks),
		Total:          total,
		TotalFormatted: total.StringFixed(2),
		PriceRange:     priceRange,
	}
}

// ValidateRepairOverride checks a per-repair price override against the technician's
// override permission and approval limit.
func ValidateRepairOverride(technician *models.Technician, amount decimal.Decimal) error {
	if !technician.MayOverridePricing() {
		return forbidden("OVERRIDE_NOT_PERMITTED", "only managers with pricing override permission can override repair prices")
	}
	if amount.IsNegative() {
		return validationError("cost_override", "INVALID_OVERRIDE", "override amount cannot be negative")
	}
	if technician.ApprovalLimit != nil && amount.GreaterThan(*technician.ApprovalLimit) {
		return forbidden("APPROVAL_LIMIT_EXCEEDED",
			fmt.Sprintf("override %s exceeds approval limit %s", utils.FormatMoney(amount), utils.FormatMoney(*technician.ApprovalLimit)))
	}
	return nil
}

// ValidateBatchOverride checks a batch-level override total. Batch overrides are capped
// at twice the calculated total instead of the approval limit.
func ValidateBatchOverride(technician *models.Technician, override, calculated decimal.Decimal) error {
	if !technician.MayOverridePricing() {
		return forbidden("OVERRIDE_NOT_PERMITTED", "only managers with pricing override permission can override batch prices")
	}
	if override.IsNegative() {
		return validationError("override_total", "INVALID_OVERRIDE", "override total cannot be negative")
	}
	ceiling := calculated.Mul(batchOverrideCeiling)
	if override.GreaterThan(ceiling) {
		return conflict("OVERRIDE_CEILING_EXCEEDED",
			fmt.Sprintf("override total %s exceeds twice the calculated total %s", utils.FormatMoney(override), utils.FormatMoney(calculated)))
	}
	return nil
}

// PricingQuote is a price estimate for the next repairs on a unit
type PricingQuote struct {
	CustomerID      uint           `json:"customer_id"`
	UnitNumber      string         `json:"unit_number"`
	UnitRepairCount int            `json:"unit_repair_count"`
	Breaks          []BreakPrice   `json:"breaks"`
	Batch           BatchTotal     `json:"batch"`
	NextRepair      VolumeDiscount `json:"next_repair"`
	CustomerRepairs int64          `json:"customer_repairs"`
}

// PricingService reads pricing inputs from the store and runs the pricing engine
type PricingService struct {
	store *repository.Store
}

// NewPricingService creates a pricing service
func NewPricingService(store *repository.Store) *PricingService {
	return &PricingService{store: store}
}

// CalculateBatchPricing prices breaksCount breaks on a unit, continuing from the unit's
// current completed-repair count.
func (s *PricingService) CalculateBatchPricing(ctx context.Context, customerID uint, unitNumber string, breaksCount int) ([]BreakPrice, error) {
	return calculateBatchPricing(ctx, s.store, customerID, unitNumber, breaksCount)
}

// Quote returns the progressive batch pricing and the volume-discounted next repair price
func (s *PricingService) Quote(ctx context.Context, customerID uint, unitNumber string, breaksCount int) (*PricingQuote, error) {
	if unitNumber == "" {
		return nil, validationError("unit_number", "UNIT_NUMBER_REQUIRED", "unit number is required")
	}
	if breaksCount < 1 {
		breaksCount = 1
	}
	if _, err := s.store.Customers().FindByID(ctx, customerID); err != nil {
		return nil, customerLookupError(err)
	}

	pricing, err := s.store.Customers().Pricing(ctx, customerID)
	if err != nil {
		return nil, err
	}
	base, err := s.store.Repairs().UnitRepairCount(ctx, customerID, unitNumber)
	if err != nil {
		return nil, err
	}
	customerRepairs, err := s.store.Repairs().CountCompletedForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	breaks := ProgressivePrices(pricing, base, breaksCount)
	return &PricingQuote{
		CustomerID:      customerID,
		UnitNumber:      unitNumber,
		UnitRepairCount: base,
		Breaks:          breaks,
		Batch:           CalculateBatchTotal(breaks),
		NextRepair:      ApplyVolumeDiscount(pricing, breaks[0].Price, customerRepairs),
		CustomerRepairs: customerRepairs,
	}, nil
}

func calculateBatchPricing(ctx context.Context, store *repository.Store, customerID uint, unitNumber string, breaksCount int) ([]BreakPrice, error) {
	pricing, err := store.Customers().Pricing(ctx, customerID)
	if err != nil {
		return nil, err
	}
	base, err := store.Repairs().UnitRepairCount(ctx, customerID, unitNumber)
	if err != nil {
		return nil, err
	}
	return ProgressivePrices(pricing, base, breaksCount), nil
}
