package entitlement

import "fmt"

// Kind identifies a family of gated capabilities.
type Kind int

const (
	// KindPremiumOnly requires IsPremium unconditionally.
	KindPremiumOnly Kind = iota + 1
	// KindMetered is free up to the configured limit per (user, bot), unlimited for premium.
	KindMetered
	// KindAdmin requires IsAdmin. It is disjoint from the consumer capabilities.
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindPremiumOnly:
		return "premium_only"
	case KindMetered:
		return "metered"
	case KindAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Capability is a named, gate-checked action.
type Capability struct {
	Kind  Kind
	BotID string // set for KindMetered only
}

// PremiumOnly is the capability for image and audio generation.
func PremiumOnly() Capability {
	return Capability{Kind: KindPremiumOnly}
}

// Metered is the capability for one chat turn against botID.
func Metered(botID string) Capability {
	return Capability{Kind: KindMetered, BotID: botID}
}

// Admin is the capability for managing other users.
func Admin() Capability {
	return Capability{Kind: KindAdmin}
}

func (c Capability) String() string {
	if c.Kind == KindMetered {
		return fmt.Sprintf("%s(%s)", c.Kind, c.BotID)
	}
	return c.Kind.String()
}
