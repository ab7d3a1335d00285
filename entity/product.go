package entity

import "fmt"

const StockUnlimited = -1

// StockTier is the UI category derived from a product's remaining units.
type StockTier int

const (
	TierUnlimited StockTier = iota
	TierNormal
	TierLow
	TierSoldOut
)

func (t StockTier) String() string {
	switch t {
	case TierUnlimited:
		return "unlimited"
	case TierNormal:
		return "normal"
	case TierLow:
		return "low"
	case TierSoldOut:
		return "sold out"
	}
	return "unknown"
}

// Product is a purchasable item configured by the guild owner.
// Secret is stored encrypted and decrypted only when calling the
// licensing API.
type Product struct {
	GuildId string `json:"guild_id" validate:"required"`
	Name    string `json:"name" validate:"required,max=100"`
	Secret  string `json:"-" validate:"required"`
	RoleId  string `json:"role_id" validate:"required"`
	Stock   int    `json:"stock" validate:"gte=-1"`
}

// Tier classifies the stock counter. The thresholds are a UI contract:
// -1 unlimited, 0 sold out, 1..5 low, otherwise normal.
func (p *Product) Tier() StockTier {
	switch {
	case p.Stock == StockUnlimited:
		return TierUnlimited
	case p.Stock == 0:
		return TierSoldOut
	case p.Stock >= 1 && p.Stock <= 5:
		return TierLow
	default:
		return TierNormal
	}
}

func (p *Product) SoldOut() bool {
	return p.Tier() == TierSoldOut
}

// StockLabel is the dropdown annotation shown next to the product name.
func (p *Product) StockLabel() string {
	switch p.Tier() {
	case TierUnlimited:
		return "in stock"
	case TierSoldOut:
		return "sold out"
	case TierLow:
		return fmt.Sprintf("only %d left", p.Stock)
	default:
		return fmt.Sprintf("%d in stock", p.Stock)
	}
}
