package entity

// GuildSettings holds per-guild customization. Zero values mean
// "not configured": tickets are created at the guild root and no log
// notices are sent.
type GuildSettings struct {
	GuildId          string `json:"guild_id"`
	TicketCategoryId string `json:"ticket_category_id"`
	LogChannelId     string `json:"log_channel_id"`
}
