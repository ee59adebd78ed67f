package enums

import "fmt"

// BidStatus tracks the negotiation lifecycle of a bid.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusCountered BidStatus = "countered"
	BidStatusAccepted  BidStatus = "accepted"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusExpired   BidStatus = "expired"
	BidStatusPaid      BidStatus = "paid"
)

var validBidStatuses = []BidStatus{
	BidStatusPending,
	BidStatusCountered,
	BidStatusAccepted,
	BidStatusRejected,
	BidStatusExpired,
	BidStatusPaid,
}

// String implements fmt.Stringer.
func (b BidStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BidStatus.
func (b BidStatus) IsValid() bool {
	for _, candidate := range validBidStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status.
func (b BidStatus) IsTerminal() bool {
	switch b {
	case BidStatusRejected, BidStatusExpired, BidStatusPaid:
		return true
	}
	return false
}

// IsOpen reports whether the bid still counts toward a listing's active bids.
func (b BidStatus) IsOpen() bool {
	return b == BidStatusPending || b == BidStatusCountered
}

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	for _, candidate := range validBidStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid status %q", value)
}
