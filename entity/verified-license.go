package entity

// VerifiedLicense records a successful redemption of a license key for
// a product by a user. LicenseKey is stored encrypted; the external API
// remains the source of truth for single-use accounting.
type VerifiedLicense struct {
	UserId      string `json:"user_id"`
	GuildId     string `json:"guild_id"`
	ProductName string `json:"product_name"`
	LicenseKey  string `json:"-"`
}

// VerificationMessage points at the single persistent "verify purchase"
// message per guild.
type VerificationMessage struct {
	GuildId   string `json:"guild_id"`
	ChannelId string `json:"channel_id"`
	MessageId string `json:"message_id"`
}
