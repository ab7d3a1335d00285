package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keyverify/entity"
)

func (s *MySql) SaveTicketBox(ctx context.Context, b *entity.TicketBox) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_boxes (guild_id, message_id, channel_id) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE channel_id = VALUES(channel_id)`,
		b.GuildId, b.MessageId, b.ChannelId)
	if err != nil {
		return fmt.Errorf("save ticket box: %w", err)
	}
	return nil
}

func (s *MySql) GetTicketBoxes(ctx context.Context, guildId string) ([]*entity.TicketBox, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, message_id, channel_id FROM ticket_boxes WHERE guild_id = ?`,
		guildId)
	if err != nil {
		return nil, fmt.Errorf("get ticket boxes: %w", err)
	}
	defer rows.Close()

	var boxes []*entity.TicketBox
	for rows.Next() {
		var b entity.TicketBox
		if err = rows.Scan(&b.GuildId, &b.MessageId, &b.ChannelId); err != nil {
			return nil, fmt.Errorf("scan ticket box: %w", err)
		}
		boxes = append(boxes, &b)
	}
	return boxes, rows.Err()
}

func (s *MySql) DeleteTicketBox(ctx context.Context, guildId, messageId string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ticket_boxes WHERE guild_id = ? AND message_id = ?`,
		guildId, messageId)
	if err != nil {
		return fmt.Errorf("delete ticket box: %w", err)
	}
	return nil
}

// SaveVerificationMessage replaces the guild's single verification
// message pointer (primary key on guild_id).
func (s *MySql) SaveVerificationMessage(ctx context.Context, m *entity.VerificationMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_messages (guild_id, channel_id, message_id) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE channel_id = VALUES(channel_id), message_id = VALUES(message_id)`,
		m.GuildId, m.ChannelId, m.MessageId)
	if err != nil {
		return fmt.Errorf("save verification message: %w", err)
	}
	return nil
}

func (s *MySql) GetVerificationMessage(ctx context.Context, guildId string) (*entity.VerificationMessage, error) {
	var m entity.VerificationMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, channel_id, message_id FROM verification_messages WHERE guild_id = ?`,
		guildId).Scan(&m.GuildId, &m.ChannelId, &m.MessageId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification message: %w", err)
	}
	return &m, nil
}

func (s *MySql) DeleteVerificationMessage(ctx context.Context, guildId string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_messages WHERE guild_id = ?`, guildId)
	if err != nil {
		return fmt.Errorf("delete verification message: %w", err)
	}
	return nil
}

func (s *MySql) SaveGuildSettings(ctx context.Context, g *entity.GuildSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, ticket_category_id, log_channel_id) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE ticket_category_id = VALUES(ticket_category_id),
		 log_channel_id = VALUES(log_channel_id)`,
		g.GuildId, g.TicketCategoryId, g.LogChannelId)
	if err != nil {
		return fmt.Errorf("save guild settings: %w", err)
	}
	return nil
}

// GetGuildSettings returns zero-valued settings for unconfigured guilds.
func (s *MySql) GetGuildSettings(ctx context.Context, guildId string) (*entity.GuildSettings, error) {
	g := entity.GuildSettings{GuildId: guildId}
	err := s.db.QueryRowContext(ctx,
		`SELECT ticket_category_id, log_channel_id FROM guild_settings WHERE guild_id = ?`,
		guildId).Scan(&g.TicketCategoryId, &g.LogChannelId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get guild settings: %w", err)
	}
	return &g, nil
}
