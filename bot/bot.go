// Package bot implements the Discord front end: session lifecycle,
// slash commands, and the component/modal router that drives the
// ticket and verification engines.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"keyverify/entity"
	"keyverify/internal/platform"
	"keyverify/internal/ticket"
	"keyverify/internal/verify"
	"keyverify/lib/sl"

	"github.com/bwmarrin/discordgo"
)

const interactionTimeout = 30 * time.Second

// Database defines the storage operations the bot layer depends on
// directly; the engines carry their own narrower interfaces.
// Implemented by internal/database.
type Database interface {
	SaveProduct(ctx context.Context, p *entity.Product) error
	DeleteProduct(ctx context.Context, guildId, name string) error
	GetProducts(ctx context.Context, guildId string) ([]*entity.Product, error)
	SetStock(ctx context.Context, guildId, name string, stock int) error
	SaveTicketBox(ctx context.Context, b *entity.TicketBox) error
	GetTicketBoxes(ctx context.Context, guildId string) ([]*entity.TicketBox, error)
	DeleteTicketBox(ctx context.Context, guildId, messageId string) error
	SaveVerificationMessage(ctx context.Context, m *entity.VerificationMessage) error
	GetVerificationMessage(ctx context.Context, guildId string) (*entity.VerificationMessage, error)
	DeleteVerificationMessage(ctx context.Context, guildId string) error
	SaveGuildSettings(ctx context.Context, g *entity.GuildSettings) error
	GetGuildSettings(ctx context.Context, guildId string) (*entity.GuildSettings, error)
}

// Cipher encrypts product secrets before they reach the database.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
}

type DiscordBot struct {
	log     *slog.Logger
	session *discordgo.Session
	db      Database
	cipher  Cipher
	tickets *ticket.Engine
	verify  *verify.Engine
	appId   string
}

func NewDiscordBot(token, appId string, db Database, cipher Cipher, log *slog.Logger) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating gateway session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	return &DiscordBot{
		log:     log.With(sl.Module("bot")),
		session: session,
		db:      db,
		cipher:  cipher,
		appId:   appId,
	}, nil
}

// Platform exposes the gateway-backed adapter so the engines and the
// admin core can act on Discord through the same session.
func (b *DiscordBot) Platform() platform.Platform {
	return NewPlatform(b.session)
}

// SetEngines wires the workflow engines. Must be called before Start:
// the engines need the platform adapter, which needs the session, so
// construction happens in two phases.
func (b *DiscordBot) SetEngines(tickets *ticket.Engine, verifier *verify.Engine) {
	b.tickets = tickets
	b.verify = verifier
}

func (b *DiscordBot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening gateway connection: %w", err)
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.appId, "", commandDefinitions()); err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.log.Info("slash commands registered")
	return nil
}

func (b *DiscordBot) Stop() {
	b.log.Info("stopping discord bot")
	if err := b.session.Close(); err != nil {
		b.log.Warn("closing gateway session", sl.Err(err))
	}
}

func (b *DiscordBot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("gateway ready",
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)))

	go b.restoreGuilds(r.Guilds)
}

// onInteraction is the single dispatch point: slash commands by name,
// components and modals by custom-id prefix.
func (b *DiscordBot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.onCommand(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		b.onComponent(ctx, s, i)
	case discordgo.InteractionModalSubmit:
		b.onModal(ctx, s, i)
	}
}
