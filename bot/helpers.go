package bot

import (
	"errors"
	"fmt"
	"time"

	"keyverify/internal/database"
	"keyverify/internal/platform"
	"keyverify/internal/ticket"
	"keyverify/internal/verify"
	"keyverify/lib/sl"

	"github.com/bwmarrin/discordgo"
)

// ephemeral answers the interaction with a message only the actor sees.
func (b *DiscordBot) ephemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn("sending ephemeral reply", sl.Err(err))
	}
}

// deferEphemeral acknowledges the interaction so a slow operation can
// answer later via followUp.
func (b *DiscordBot) deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.log.Warn("deferring interaction", sl.Err(err))
	}
}

func (b *DiscordBot) followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		b.log.Warn("sending follow-up", sl.Err(err))
	}
}

// requireManager rejects actors without Manage Channels before any
// state is touched.
func (b *DiscordBot) requireManager(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		b.ephemeral(s, i, "This command only works inside a server.")
		return false
	}
	if i.Member.Permissions&discordgo.PermissionManageChannels != 0 ||
		i.Member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	b.ephemeral(s, i, "You need the Manage Channels permission to do that.")
	return false
}

// reportError logs the failure and tells the actor in the generic
// user-facing wording; details stay in the log.
func (b *DiscordBot) reportError(s *discordgo.Session, i *discordgo.InteractionCreate, op string, err error) {
	b.log.Error(op, sl.Guild(i.GuildID), sl.Err(err))
	b.ephemeral(s, i, renderError(err))
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	user := interactionUser(i)
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// renderError turns engine and platform errors into the user-facing
// message for an ephemeral reply.
func renderError(err error) string {
	var cooldown *ticket.CooldownError
	if errors.As(err, &cooldown) {
		return fmt.Sprintf("Please wait %s before opening another ticket.", cooldown.RetryAfter.Round(time.Second))
	}
	var existing *ticket.ExistingTicketError
	if errors.As(err, &existing) {
		return fmt.Sprintf("You already have an open ticket: <#%s>", existing.ChannelId)
	}
	var soldOut *ticket.SoldOutError
	if errors.As(err, &soldOut) {
		return fmt.Sprintf("**%s** is sold out, so no ticket can be opened for it right now.", soldOut.Product)
	}
	var roleCfg *verify.RoleConfigError
	if errors.As(err, &roleCfg) {
		return fmt.Sprintf("The role configured for **%s** no longer exists. Please ask the server owner to fix the product setup.", roleCfg.Product)
	}
	switch {
	case errors.Is(err, verify.ErrKeyFormat):
		return "That license key does not look right. Expected format: `XXXXX-XXXXX-XXXXX-XXXXX` (uppercase)."
	case errors.Is(err, verify.ErrLicenseDisabled):
		return "This license key is disabled or unknown."
	case errors.Is(err, verify.ErrLicenseUsed):
		return "This license key has already been used."
	case errors.Is(err, verify.ErrSessionExpired):
		return "That selection expired. Please click the verify button again."
	case errors.Is(err, database.ErrTicketExists):
		return "You already have an open ticket."
	case errors.Is(err, platform.ErrForbidden):
		return "I am missing a permission for that. Please ask the server owner to check my role."
	}
	return "Something went wrong. Please try again later."
}
