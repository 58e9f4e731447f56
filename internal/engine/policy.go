package engine

import "fmt"

// SelfTradePolicy decides what happens when an incoming order would match a
// resting order of the same user.
type SelfTradePolicy string

const (
	// SelfTradeAllow matches the two orders like any other pair.
	SelfTradeAllow SelfTradePolicy = "allow"
	// SelfTradeCancelResting cancels the resting order and keeps matching.
	SelfTradeCancelResting SelfTradePolicy = "cancel_resting"
	// SelfTradeCancelIncoming cancels the remainder of the incoming order.
	SelfTradeCancelIncoming SelfTradePolicy = "cancel_incoming"
)

// ParseSelfTradePolicy converts a configuration value into a policy. The
// empty string selects SelfTradeAllow.
func ParseSelfTradePolicy(s string) (SelfTradePolicy, error) {
	switch p := SelfTradePolicy(s); p {
	case "":
		return SelfTradeAllow, nil
	case SelfTradeAllow, SelfTradeCancelResting, SelfTradeCancelIncoming:
		return p, nil
	}
	return "", fmt.Errorf("unknown self-trade policy %q", s)
}
