package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keyverify/internal/database"
	"keyverify/lib/sl"

	"github.com/bwmarrin/discordgo"
)

const restoreTimeout = 5 * time.Minute

// restoreGuilds reconciles persistent state with what actually exists
// on Discord after a restart: message pointers whose messages were
// deleted while the bot was offline are dropped, and ticket rows whose
// channels are gone are swept. Runs once per gateway ready.
func (b *DiscordBot) restoreGuilds(guilds []*discordgo.Guild) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	for _, g := range guilds {
		b.restoreGuild(ctx, g.ID)
	}
	b.log.Info("guild state restored", slog.Int("guilds", len(guilds)))
}

func (b *DiscordBot) restoreGuild(ctx context.Context, guildId string) {
	log := b.log.With(sl.Guild(guildId))
	p := NewPlatform(b.session)

	boxes, err := b.db.GetTicketBoxes(ctx, guildId)
	if err != nil {
		log.Error("loading ticket boxes", sl.Err(err))
	}
	for _, box := range boxes {
		ok, err := p.MessageExists(ctx, box.ChannelId, box.MessageId)
		if err != nil {
			log.Warn("checking ticket box", sl.Channel(box.ChannelId), sl.Err(err))
			continue
		}
		if !ok {
			if err = b.db.DeleteTicketBox(ctx, guildId, box.MessageId); err != nil {
				log.Error("pruning ticket box", sl.Err(err))
			} else {
				log.Info("pruned dead ticket box", sl.Channel(box.ChannelId))
			}
		}
	}

	msg, err := b.db.GetVerificationMessage(ctx, guildId)
	switch {
	case err == nil:
		ok, err := p.MessageExists(ctx, msg.ChannelId, msg.MessageId)
		if err != nil {
			log.Warn("checking verification message", sl.Channel(msg.ChannelId), sl.Err(err))
		} else if !ok {
			if err = b.db.DeleteVerificationMessage(ctx, guildId); err != nil {
				log.Error("pruning verification message", sl.Err(err))
			} else {
				log.Info("pruned dead verification message", sl.Channel(msg.ChannelId))
			}
		}
	case errors.Is(err, database.ErrNotFound):
		// no verification message posted in this guild
	default:
		log.Error("loading verification message", sl.Err(err))
	}

	swept, err := b.tickets.Sweep(ctx, guildId)
	if err != nil {
		log.Error("sweeping stale tickets", sl.Err(err))
	} else if swept > 0 {
		log.Info("swept stale tickets", slog.Int("count", swept))
	}
}
