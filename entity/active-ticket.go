package entity

import "time"

// ActiveTicket tracks a live support channel. At most one per
// (guild, user); the store enforces this with a unique key so two
// concurrent creations cannot both succeed.
type ActiveTicket struct {
	GuildId      string    `json:"guild_id"`
	ChannelId    string    `json:"channel_id"`
	UserId       string    `json:"user_id"`
	ProductName  string    `json:"product_name"` // empty means general support
	TicketNumber int64     `json:"ticket_number"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t *ActiveTicket) IsGeneral() bool {
	return t.ProductName == ""
}

// TicketBox points at a persistent message carrying the "open a ticket"
// button. A guild may post several boxes in different channels.
type TicketBox struct {
	GuildId   string `json:"guild_id"`
	MessageId string `json:"message_id"`
	ChannelId string `json:"channel_id"`
}
