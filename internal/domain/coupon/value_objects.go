package coupon

import (
	"errors"
	"regexp"
	"strings"

	"coupon-settlement/internal/domain/money"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCouponCode      = errors.New("invalid coupon code format")
	ErrInvalidDiscountType    = errors.New("invalid discount type")
	ErrInvalidDiscountAmount  = errors.New("fixed discount must be positive")
	ErrInvalidDiscountPercent = errors.New("percentage discount must be in (0,100]")
	ErrInvalidMaxDiscount     = errors.New("max discount only applies to percentage coupons")
	ErrInvalidOrderType       = errors.New("invalid order type")
)

var couponCodeRegex = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// Code is a case-normalized coupon identifier. Lookup is case-insensitive
// after trimming; NewCode performs the normalization.
type Code string

func NewCode(code string) (Code, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if !couponCodeRegex.MatchString(code) {
		return Code(""), ErrInvalidCouponCode
	}
	return Code(code), nil
}

func (c Code) String() string {
	return string(c)
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func NewDiscountType(s string) (DiscountType, error) {
	switch DiscountType(s) {
	case DiscountPercentage, DiscountFixed:
		return DiscountType(s), nil
	default:
		return "", ErrInvalidDiscountType
	}
}

// Discount is a coupon's pricing policy: either a percentage of the order
// subtotal (optionally capped) or a fixed amount in minor units.
type Discount struct {
	discountType DiscountType
	value        decimal.Decimal
	maxDiscount  *money.Money
}

func NewPercentageDiscount(percent decimal.Decimal, maxDiscount *money.Money) (Discount, error) {
	if percent.LessThanOrEqual(decimal.Zero) || percent.GreaterThan(decimal.NewFromInt(100)) {
		return Discount{}, ErrInvalidDiscountPercent
	}
	return Discount{
		discountType: DiscountPercentage,
		value:        percent,
		maxDiscount:  maxDiscount,
	}, nil
}

func NewFixedDiscount(amount money.Money) (Discount, error) {
	if amount.IsZero() {
		return Discount{}, ErrInvalidDiscountAmount
	}
	return Discount{
		discountType: DiscountFixed,
		value:        decimal.NewFromInt(amount.MinorUnits()),
	}, nil
}

func NewDiscount(discountType DiscountType, value decimal.Decimal, maxDiscount *money.Money) (Discount, error) {
	switch discountType {
	case DiscountPercentage:
		return NewPercentageDiscount(value, maxDiscount)
	case DiscountFixed:
		if maxDiscount != nil {
			return Discount{}, ErrInvalidMaxDiscount
		}
		if !value.IsInteger() || value.LessThanOrEqual(decimal.Zero) {
			return Discount{}, ErrInvalidDiscountAmount
		}
		return NewFixedDiscount(money.Money(value.IntPart()))
	default:
		return Discount{}, ErrInvalidDiscountType
	}
}

func (d Discount) Type() DiscountType {
	return d.discountType
}

func (d Discount) Value() decimal.Decimal {
	return d.value
}

func (d Discount) MaxDiscount() *money.Money {
	return d.maxDiscount
}

func (d Discount) IsPercentage() bool {
	return d.discountType == DiscountPercentage
}

// OrderType distinguishes the two checkout pipelines that consume coupons.
type OrderType string

const (
	OrderTypeProduct      OrderType = "product"
	OrderTypeSubscription OrderType = "subscription"
)

func NewOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderTypeProduct, OrderTypeSubscription:
		return OrderType(s), nil
	default:
		return "", ErrInvalidOrderType
	}
}

func (t OrderType) String() string {
	return string(t)
}

// OrderItem carries the product/category identity of one cart line, as
// supplied by the cart pipeline. Only identity matters for applicability.
type OrderItem struct {
	ProductID  string
	CategoryID string
}
