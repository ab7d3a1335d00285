package entity

import (
	"net/http"

	"keyverify/lib/validate"
)

// LicenseResetRequest asks the licensing provider to hand a key back
// after a refund or a mistaken activation.
type LicenseResetRequest struct {
	GuildId    string `json:"guild_id" validate:"required"`
	Product    string `json:"product" validate:"required,max=100"`
	LicenseKey string `json:"license_key" validate:"required,min=23,max=23"`
}

func (l *LicenseResetRequest) Bind(_ *http.Request) error {
	return validate.Struct(l)
}

// BlacklistRequest revokes everything a user gained through
// verification: their keys are disabled upstream, the local records are
// purged and the granted roles removed.
type BlacklistRequest struct {
	GuildId string `json:"guild_id" validate:"required"`
	UserId  string `json:"user_id" validate:"required"`
}

func (b *BlacklistRequest) Bind(_ *http.Request) error {
	return validate.Struct(b)
}

// BlacklistResult reports what the blacklist operation actually
// touched, so the caller can audit partial failures.
type BlacklistResult struct {
	Disabled     int      `json:"disabled"`
	RolesRemoved int      `json:"roles_removed"`
	Products     []string `json:"products"`
}
