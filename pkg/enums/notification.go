package enums

import "fmt"

// NotificationCategory labels user-facing notifications.
type NotificationCategory string

const (
	NotificationBidReceived   NotificationCategory = "bid_received"
	NotificationBidCountered  NotificationCategory = "bid_countered"
	NotificationBidAccepted   NotificationCategory = "bid_accepted"
	NotificationBidRejected   NotificationCategory = "bid_rejected"
	NotificationPaymentResult NotificationCategory = "payment_result"
)

var validNotificationCategories = []NotificationCategory{
	NotificationBidReceived,
	NotificationBidCountered,
	NotificationBidAccepted,
	NotificationBidRejected,
	NotificationPaymentResult,
}

// String implements fmt.Stringer.
func (n NotificationCategory) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationCategory.
func (n NotificationCategory) IsValid() bool {
	for _, candidate := range validNotificationCategories {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationCategory converts raw input into a NotificationCategory.
func ParseNotificationCategory(value string) (NotificationCategory, error) {
	for _, candidate := range validNotificationCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification category %q", value)
}
