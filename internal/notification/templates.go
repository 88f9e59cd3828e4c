package notification

import (
	"fmt"

	"github.com/boloastro/payments/internal/notification/domain"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
)

func productLabel(pt orderdomain.ProductType) string {
	switch pt {
	case orderdomain.ProductKundali:
		return "Kundali report"
	case orderdomain.ProductMilan:
		return "Kundali Milan report"
	case orderdomain.ProductQNA:
		return "astrology questions pack"
	default:
		return string(pt)
	}
}

// SuccessMessage confirms payment and tells the user what got unlocked.
func SuccessMessage(order *orderdomain.Order) domain.Message {
	body := fmt.Sprintf(
		"Payment of ₹%.2f received. Your %s is now unlocked. Reply here to continue.",
		float64(order.AmountPaise)/100,
		productLabel(order.ProductType),
	)
	if order.ProductType == orderdomain.ProductQNA {
		body = fmt.Sprintf(
			"Payment of ₹%.2f received. 4 question credits added to your account. Ask away!",
			float64(order.AmountPaise)/100,
		)
	}
	return domain.Message{
		Kind:        domain.KindPaymentSuccess,
		Phone:       order.Phone,
		Body:        body,
		OrderID:     order.OrderID,
		ProductType: string(order.ProductType),
	}
}

func FailureMessage(order *orderdomain.Order) domain.Message {
	return domain.Message{
		Kind:        domain.KindPaymentFailed,
		Phone:       order.Phone,
		Body:        fmt.Sprintf("Your payment for the %s didn't go through. No money was deducted, or it will be auto-refunded by your bank. You can retry anytime.", productLabel(order.ProductType)),
		OrderID:     order.OrderID,
		ProductType: string(order.ProductType),
	}
}

// ReminderMessage nudges a user whose payment link is still unpaid.
func ReminderMessage(order *orderdomain.Order) domain.Message {
	return domain.Message{
		Kind:        domain.KindPaymentReminder,
		Phone:       order.Phone,
		Body:        fmt.Sprintf("Your %s is waiting! Complete the payment here: %s", productLabel(order.ProductType), order.PaymentLink),
		OrderID:     order.OrderID,
		ProductType: string(order.ProductType),
	}
}

// DiscountMessage offers a reduced price on a long-abandoned order.
func DiscountMessage(order *orderdomain.Order, discountPct int, link string) domain.Message {
	discounted := order.AmountPaise * int64(100-discountPct) / 100
	return domain.Message{
		Kind:        domain.KindDiscountOffer,
		Phone:       order.Phone,
		Body:        fmt.Sprintf("Special offer: get your %s at %d%% off, now just ₹%.2f. Pay here: %s", productLabel(order.ProductType), discountPct, float64(discounted)/100, link),
		OrderID:     order.OrderID,
		ProductType: string(order.ProductType),
		Meta: map[string]string{
			"discount_pct": fmt.Sprintf("%d", discountPct),
		},
	}
}
