// Package ticket drives the support-ticket lifecycle: cooldown gate,
// one-ticket-per-user check, product selection with stock tiers,
// channel provisioning with permission overwrites, closure and
// stale-record cleanup.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"keyverify/entity"
	"keyverify/internal/database"
	"keyverify/internal/platform"
	"keyverify/lib/clock"
	"keyverify/lib/sl"
)

const (
	creationCooldown = 60 * time.Second
	keyPromptDelay   = 2 * time.Second
	closeGracePeriod = 5 * time.Second
)

// CooldownError reports how long the user must wait before opening
// another ticket. The message shown to the user carries this verbatim.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("ticket creation on cooldown, retry in %s", e.RetryAfter.Round(time.Second))
}

// ExistingTicketError means the user already has a live ticket channel.
type ExistingTicketError struct {
	ChannelId string
}

func (e *ExistingTicketError) Error() string {
	return "user already has an open ticket"
}

// SoldOutError rejects selection of a product with zero stock.
type SoldOutError struct {
	Product string
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("product %q is sold out", e.Product)
}

// Store defines the persistence the engine depends on.
// Implemented by internal/database.
type Store interface {
	GetTicketByUser(ctx context.Context, guildId, userId string) (*entity.ActiveTicket, error)
	GetTicketByChannel(ctx context.Context, guildId, channelId string) (*entity.ActiveTicket, error)
	GetTicketByNumber(ctx context.Context, guildId string, number int64) (*entity.ActiveTicket, error)
	GetTickets(ctx context.Context, guildId string) ([]*entity.ActiveTicket, error)
	SaveTicket(ctx context.Context, t *entity.ActiveTicket) error
	DeleteTicket(ctx context.Context, guildId, channelId string) error
	NextTicketNumber(ctx context.Context, guildId string) (int64, error)
	AdjustStock(ctx context.Context, guildId, name string, delta int) error
	GetProduct(ctx context.Context, guildId, name string) (*entity.Product, error)
	GetProducts(ctx context.Context, guildId string) ([]*entity.Product, error)
	GetGuildSettings(ctx context.Context, guildId string) (*entity.GuildSettings, error)
}

// Option is one entry of the product-selection dropdown. General
// support is the synthetic first entry; sold-out products stay listed
// so the user sees their status inline.
type Option struct {
	Name    string
	General bool
	Tier    entity.StockTier
	Label   string
}

type Engine struct {
	store    Store
	guild    platform.Platform
	cooldown *cooldown
	log      *slog.Logger

	// shortened in tests
	promptDelay time.Duration
	graceDelay  time.Duration
}

func NewEngine(store Store, guild platform.Platform, log *slog.Logger) *Engine {
	return &Engine{
		store:       store,
		guild:       guild,
		cooldown:    newCooldown(creationCooldown),
		log:         log.With(sl.Module("ticket")),
		promptDelay: keyPromptDelay,
		graceDelay:  closeGracePeriod,
	}
}

// BeginCreate handles the create-ticket button. It applies the
// cooldown, resolves (or self-heals) an existing ticket, and returns
// the selection list for the dropdown.
func (e *Engine) BeginCreate(ctx context.Context, guildId, userId string) ([]Option, error) {
	if wait, ok := e.cooldown.reserve(userId); !ok {
		return nil, &CooldownError{RetryAfter: wait}
	}

	existing, err := e.store.GetTicketByUser(ctx, guildId, userId)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing ticket: %w", err)
	}
	if existing != nil {
		alive, err := e.guild.ChannelExists(ctx, existing.ChannelId)
		if err != nil {
			return nil, fmt.Errorf("check ticket channel: %w", err)
		}
		if alive {
			return nil, &ExistingTicketError{ChannelId: existing.ChannelId}
		}
		// Channel deleted out-of-band: drop the stale row and proceed.
		e.log.Info("removing stale ticket record",
			sl.Guild(guildId), sl.User(userId), sl.Channel(existing.ChannelId))
		if err = e.store.DeleteTicket(ctx, guildId, existing.ChannelId); err != nil {
			return nil, fmt.Errorf("delete stale ticket: %w", err)
		}
	}

	products, err := e.store.GetProducts(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	options := make([]Option, 0, len(products)+1)
	options = append(options, Option{Name: "General Support", General: true})
	for _, p := range products {
		options = append(options, Option{
			Name:  p.Name,
			Tier:  p.Tier(),
			Label: p.StockLabel(),
		})
	}
	return options, nil
}

// CompleteCreate handles the dropdown choice: mints the ticket number,
// provisions the channel and inserts the record. productName empty
// means general support.
func (e *Engine) CompleteCreate(ctx context.Context, guildId, userId, productName, displayName string) (*entity.ActiveTicket, error) {
	var product *entity.Product
	if productName != "" {
		var err error
		product, err = e.store.GetProduct(ctx, guildId, productName)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("product %q no longer exists", productName)
		}
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		if product.SoldOut() {
			return nil, &SoldOutError{Product: productName}
		}
	}

	// Counter first: if the store is down no channel is left behind.
	number, err := e.store.NextTicketNumber(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("mint ticket number: %w", err)
	}

	settings, err := e.store.GetGuildSettings(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("load guild settings: %w", err)
	}

	overwrites, err := e.channelOverwrites(ctx, guildId, userId)
	if err != nil {
		return nil, err
	}

	channelId, err := e.guild.CreateChannel(ctx, guildId, platform.ChannelRequest{
		Name:       channelName(number, displayName),
		CategoryId: settings.TicketCategoryId,
		Overwrites: overwrites,
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	ticket := &entity.ActiveTicket{
		GuildId:      guildId,
		ChannelId:    channelId,
		UserId:       userId,
		ProductName:  productName,
		TicketNumber: number,
		CreatedAt:    time.Now().UTC(),
	}
	if err = e.store.SaveTicket(ctx, ticket); err != nil {
		// Second rapid creation lost the unique-key race: tear the
		// channel back down so Discord matches the store.
		if delErr := e.guild.DeleteChannel(ctx, channelId); delErr != nil && !errors.Is(delErr, platform.ErrNotFound) {
			e.log.Warn("removing channel after failed insert",
				sl.Guild(guildId), sl.Channel(channelId), sl.Err(delErr))
		}
		return nil, err
	}

	if product != nil {
		// Reserve a unit for the sale this ticket is about. The store
		// clamps at zero and skips unlimited products; failure here
		// does not undo the ticket, the owner corrects via /product.
		if err = e.store.AdjustStock(ctx, guildId, productName, -1); err != nil {
			e.log.Warn("reserving stock unit", sl.Guild(guildId), sl.Product(productName), sl.Err(err))
		}
	}

	welcome := fmt.Sprintf("Welcome <@%s>! Ticket #%d is open. A member of the team will be with you shortly.", userId, number)
	if err = e.guild.SendMessage(ctx, channelId, welcome); err != nil {
		e.log.Warn("sending welcome message", sl.Guild(guildId), sl.Channel(channelId), sl.Err(err))
	}

	if product != nil {
		e.sleep(ctx, e.promptDelay)
		prompt := fmt.Sprintf("To speed things up, please post the license key for **%s** (format `XXXXX-XXXXX-XXXXX-XXXXX`).", product.Name)
		if err = e.guild.SendMessage(ctx, channelId, prompt); err != nil {
			e.log.Warn("sending key prompt", sl.Guild(guildId), sl.Channel(channelId), sl.Err(err))
		}
	}

	e.logNotice(ctx, settings, fmt.Sprintf("Ticket #%d opened by <@%s>", number, userId))
	return ticket, nil
}

// Close tears down the ticket living in the given channel. The record
// is removed first; a channel that fails to delete is tolerated and
// reconciled by the next sweep.
func (e *Engine) Close(ctx context.Context, guildId, channelId string) error {
	ticket, err := e.store.GetTicketByChannel(ctx, guildId, channelId)
	if errors.Is(err, database.ErrNotFound) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup ticket: %w", err)
	}
	return e.close(ctx, ticket)
}

// ForceClose closes a ticket by its number, for moderators operating
// outside the ticket channel.
func (e *Engine) ForceClose(ctx context.Context, guildId string, number int64) error {
	ticket, err := e.store.GetTicketByNumber(ctx, guildId, number)
	if errors.Is(err, database.ErrNotFound) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup ticket: %w", err)
	}
	return e.close(ctx, ticket)
}

func (e *Engine) close(ctx context.Context, ticket *entity.ActiveTicket) error {
	notice := fmt.Sprintf("Ticket #%d is closing. This channel will be removed shortly.", ticket.TicketNumber)
	if err := e.guild.SendMessage(ctx, ticket.ChannelId, notice); err != nil && !errors.Is(err, platform.ErrNotFound) {
		e.log.Warn("sending closure notice", sl.Guild(ticket.GuildId), sl.Channel(ticket.ChannelId), sl.Err(err))
	}

	if err := e.store.DeleteTicket(ctx, ticket.GuildId, ticket.ChannelId); err != nil {
		return fmt.Errorf("delete ticket record: %w", err)
	}

	e.sleep(ctx, e.graceDelay)

	err := e.guild.DeleteChannel(ctx, ticket.ChannelId)
	switch {
	case errors.Is(err, platform.ErrNotFound):
		// Already gone out-of-band; the record is removed, done.
	case err != nil:
		// Record is gone but the channel survived; the next sweep
		// cannot fix this, so it is logged loudly.
		e.log.Error("deleting ticket channel",
			sl.Guild(ticket.GuildId), sl.Channel(ticket.ChannelId), sl.Err(err))
	}

	settings, err := e.store.GetGuildSettings(ctx, ticket.GuildId)
	if err == nil {
		e.logNotice(ctx, settings, fmt.Sprintf("Ticket #%d closed, open for %s", ticket.TicketNumber, clock.Age(ticket.CreatedAt)))
	}
	return nil
}

// Sweep removes records whose channels were deleted out-of-band.
// Running it twice with no Discord-side change is a no-op.
func (e *Engine) Sweep(ctx context.Context, guildId string) (int, error) {
	tickets, err := e.store.GetTickets(ctx, guildId)
	if err != nil {
		return 0, fmt.Errorf("list tickets: %w", err)
	}
	removed := 0
	for _, t := range tickets {
		alive, err := e.guild.ChannelExists(ctx, t.ChannelId)
		if err != nil {
			e.log.Warn("checking ticket channel", sl.Guild(guildId), sl.Channel(t.ChannelId), sl.Err(err))
			continue
		}
		if alive {
			continue
		}
		if err = e.store.DeleteTicket(ctx, guildId, t.ChannelId); err != nil {
			e.log.Warn("removing stale ticket", sl.Guild(guildId), sl.Channel(t.ChannelId), sl.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		e.log.Info("stale ticket sweep", sl.Guild(guildId), slog.Int("removed", removed))
	}
	return removed, nil
}

func (e *Engine) channelOverwrites(ctx context.Context, guildId, userId string) ([]platform.PermissionOverwrite, error) {
	owner, err := e.guild.GuildOwner(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("resolve guild owner: %w", err)
	}
	moderators, err := e.guild.ModeratorRoles(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("resolve moderator roles: %w", err)
	}

	// The @everyone role shares the guild id.
	overwrites := []platform.PermissionOverwrite{
		{Id: guildId, Role: true, Allow: false},
		{Id: userId, Allow: true},
		{Id: owner, Allow: true},
	}
	for _, roleId := range moderators {
		overwrites = append(overwrites, platform.PermissionOverwrite{Id: roleId, Role: true, Allow: true})
	}
	return overwrites, nil
}

func (e *Engine) logNotice(ctx context.Context, settings *entity.GuildSettings, text string) {
	if settings == nil || settings.LogChannelId == "" {
		return
	}
	if err := e.guild.SendMessage(ctx, settings.LogChannelId, text); err != nil {
		e.log.Warn("sending log notice", sl.Guild(settings.GuildId), sl.Err(err))
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// channelName builds the deterministic ticket channel name from the
// number and the opener's display name.
func channelName(number int64, displayName string) string {
	name := strings.ToLower(displayName)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_':
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		cleaned = "user"
	}
	if len(cleaned) > 20 {
		cleaned = cleaned[:20]
	}
	return fmt.Sprintf("ticket-%04d-%s", number, cleaned)
}
