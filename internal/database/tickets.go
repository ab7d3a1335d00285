package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keyverify/entity"
)

// NextTicketNumber mints the next per-guild ticket number. The insert
// and increment are a single statement, so two concurrent creations
// always see distinct values regardless of process count.
func (s *MySql) NextTicketNumber(ctx context.Context, guildId string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_counters (guild_id, counter) VALUES (?, LAST_INSERT_ID(1))
		 ON DUPLICATE KEY UPDATE counter = LAST_INSERT_ID(counter + 1)`,
		guildId)
	if err != nil {
		return 0, fmt.Errorf("increment ticket counter: %w", err)
	}
	number, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read ticket counter: %w", err)
	}
	return number, nil
}

func (s *MySql) SaveTicket(ctx context.Context, t *entity.ActiveTicket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO active_tickets (guild_id, channel_id, user_id, product_name, ticket_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.GuildId, t.ChannelId, t.UserId, t.ProductName, t.TicketNumber, t.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrTicketExists
		}
		return fmt.Errorf("save ticket: %w", err)
	}
	return nil
}

func (s *MySql) GetTicketByUser(ctx context.Context, guildId, userId string) (*entity.ActiveTicket, error) {
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT guild_id, channel_id, user_id, product_name, ticket_number, created_at
		 FROM active_tickets WHERE guild_id = ? AND user_id = ?`,
		guildId, userId))
}

func (s *MySql) GetTicketByChannel(ctx context.Context, guildId, channelId string) (*entity.ActiveTicket, error) {
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT guild_id, channel_id, user_id, product_name, ticket_number, created_at
		 FROM active_tickets WHERE guild_id = ? AND channel_id = ?`,
		guildId, channelId))
}

func (s *MySql) GetTicketByNumber(ctx context.Context, guildId string, number int64) (*entity.ActiveTicket, error) {
	return s.scanTicket(s.db.QueryRowContext(ctx,
		`SELECT guild_id, channel_id, user_id, product_name, ticket_number, created_at
		 FROM active_tickets WHERE guild_id = ? AND ticket_number = ?`,
		guildId, number))
}

func (s *MySql) GetTickets(ctx context.Context, guildId string) ([]*entity.ActiveTicket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, channel_id, user_id, product_name, ticket_number, created_at
		 FROM active_tickets WHERE guild_id = ? ORDER BY ticket_number`,
		guildId)
	if err != nil {
		return nil, fmt.Errorf("get tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*entity.ActiveTicket
	for rows.Next() {
		var t entity.ActiveTicket
		if err = rows.Scan(&t.GuildId, &t.ChannelId, &t.UserId, &t.ProductName, &t.TicketNumber, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, &t)
	}
	return tickets, rows.Err()
}

func (s *MySql) DeleteTicket(ctx context.Context, guildId, channelId string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM active_tickets WHERE guild_id = ? AND channel_id = ?`,
		guildId, channelId)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return nil
}

func (s *MySql) scanTicket(row *sql.Row) (*entity.ActiveTicket, error) {
	var t entity.ActiveTicket
	err := row.Scan(&t.GuildId, &t.ChannelId, &t.UserId, &t.ProductName, &t.TicketNumber, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	return &t, nil
}
