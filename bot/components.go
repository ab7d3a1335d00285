package bot

import (
	"context"
	"fmt"
	"strings"

	"keyverify/internal/ticket"
	"keyverify/lib/sl"

	"github.com/bwmarrin/discordgo"
)

// Component custom-id prefixes. Discord limits custom ids to 100
// bytes, so prefixes stay short and dynamic payloads ride behind them.
// Format: prefix + value (e.g. "tk:close:1234", "vf:key:<session>").
const (
	cbTicketCreate   = "tk:create"
	cbTicketSelect   = "tk:select"
	cbTicketCloseYes = "tk:close:" // tk:close:<channel_id>
	cbTicketCloseNo  = "tk:keep"
	cbVerifyStart    = "vf:start"
	cbVerifySelect   = "vf:select"
	cbVerifyModal    = "vf:key:" // vf:key:<session_id>

	selectGeneral       = "general"
	selectProductPrefix = "p:"

	maxSelectOptions = 25 // Discord cap on dropdown entries
)

// --- Message builders ---

func ticketBoxMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Need help?",
			Description: "Open a private ticket with the team. Pick a product or general support in the next step.",
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Open a ticket",
					Style:    discordgo.PrimaryButton,
					CustomID: cbTicketCreate,
				},
			}},
		},
	}
}

func verificationMessage() *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Verify your purchase",
			Description: "Click below to redeem your license key and receive your customer role.",
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Verify purchase",
					Style:    discordgo.SuccessButton,
					CustomID: cbVerifyStart,
				},
			}},
		},
	}
}

// productSelect turns the engine's option list into the ticket
// dropdown. Sold-out entries remain selectable so the user sees the
// status inline; the engine rejects them on selection.
func productSelect(options []ticket.Option) discordgo.ActionsRow {
	entries := make([]discordgo.SelectMenuOption, 0, len(options))
	for _, o := range options {
		if len(entries) == maxSelectOptions {
			break
		}
		if o.General {
			entries = append(entries, discordgo.SelectMenuOption{
				Label:       o.Name,
				Value:       selectGeneral,
				Description: "Questions, issues, anything else",
			})
			continue
		}
		entries = append(entries, discordgo.SelectMenuOption{
			Label:       o.Name,
			Value:       selectProductPrefix + o.Name,
			Description: o.Label,
		})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			CustomID:    cbTicketSelect,
			Placeholder: "What do you need help with?",
			Options:     entries,
		},
	}}
}

func verifySelect(pending []string) discordgo.ActionsRow {
	entries := make([]discordgo.SelectMenuOption, 0, len(pending))
	for _, name := range pending {
		if len(entries) == maxSelectOptions {
			break
		}
		entries = append(entries, discordgo.SelectMenuOption{Label: name, Value: name})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			CustomID:    cbVerifySelect,
			Placeholder: "Which product are you verifying?",
			Options:     entries,
		},
	}}
}

func closeConfirmRow(channelId string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			Label:    "Close ticket",
			Style:    discordgo.DangerButton,
			CustomID: cbTicketCloseYes + channelId,
		},
		discordgo.Button{
			Label:    "Keep open",
			Style:    discordgo.SecondaryButton,
			CustomID: cbTicketCloseNo,
		},
	}}
}

// --- Component dispatch ---

func (b *DiscordBot) onComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	customId := i.MessageComponentData().CustomID
	switch {
	case customId == cbTicketCreate:
		b.onTicketCreate(ctx, s, i)
	case customId == cbTicketSelect:
		b.onTicketSelect(ctx, s, i)
	case strings.HasPrefix(customId, cbTicketCloseYes):
		b.onTicketCloseConfirm(ctx, s, i, strings.TrimPrefix(customId, cbTicketCloseYes))
	case customId == cbTicketCloseNo:
		b.ephemeral(s, i, "Ticket stays open.")
	case customId == cbVerifyStart:
		b.onVerifyStart(ctx, s, i)
	case customId == cbVerifySelect:
		b.onVerifySelect(ctx, s, i)
	default:
		b.log.Warn("unknown component", sl.Guild(i.GuildID), sl.User(interactionUser(i).ID))
	}
}

func (b *DiscordBot) onTicketCreate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	userId := interactionUser(i).ID
	options, err := b.tickets.BeginCreate(ctx, i.GuildID, userId)
	if err != nil {
		b.ephemeral(s, i, renderError(err))
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "Pick what this ticket is about:",
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{productSelect(options)},
		},
	})
	if err != nil {
		b.log.Warn("sending product selection", sl.Guild(i.GuildID), sl.Err(err))
	}
}

func (b *DiscordBot) onTicketSelect(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		b.ephemeral(s, i, "Nothing selected.")
		return
	}
	productName := ""
	if values[0] != selectGeneral {
		productName = strings.TrimPrefix(values[0], selectProductPrefix)
	}

	// Channel provisioning takes longer than the 3-second response
	// window, so acknowledge first.
	b.deferEphemeral(s, i)

	userId := interactionUser(i).ID
	created, err := b.tickets.CompleteCreate(ctx, i.GuildID, userId, productName, displayName(i))
	if err != nil {
		b.followUp(s, i, renderError(err))
		return
	}
	b.followUp(s, i, fmt.Sprintf("Your ticket is ready: <#%s>", created.ChannelId))
}

func (b *DiscordBot) onTicketCloseConfirm(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, channelId string) {
	if !b.requireManager(s, i) {
		return
	}
	b.deferEphemeral(s, i)
	if err := b.tickets.Close(ctx, i.GuildID, channelId); err != nil {
		b.followUp(s, i, renderError(err))
		return
	}
	b.followUp(s, i, "Ticket closed.")
}

func (b *DiscordBot) onVerifyStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.deferEphemeral(s, i)

	userId := interactionUser(i).ID
	report, err := b.verify.BeginVerify(ctx, i.GuildID, userId)
	if err != nil {
		b.followUp(s, i, renderError(err))
		return
	}

	var parts []string
	if len(report.Reassigned) > 0 {
		parts = append(parts, "Restored your roles for: **"+strings.Join(report.Reassigned, "**, **")+"**")
	}
	if len(report.Pending) == 0 {
		if len(parts) == 0 {
			parts = append(parts, "Nothing to verify: you already own every configured product.")
		}
		b.followUp(s, i, strings.Join(parts, "\n"))
		return
	}

	content := "Pick the product you want to verify:"
	if len(parts) > 0 {
		content = parts[0] + "\n" + content
	}
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:    content,
		Flags:      discordgo.MessageFlagsEphemeral,
		Components: []discordgo.MessageComponent{verifySelect(report.Pending)},
	})
	if err != nil {
		b.log.Warn("sending verify selection", sl.Guild(i.GuildID), sl.Err(err))
	}
}

func (b *DiscordBot) onVerifySelect(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		b.ephemeral(s, i, "Nothing selected.")
		return
	}
	productName := values[0]

	sessionId, err := b.verify.StartKeyEntry(ctx, i.GuildID, productName)
	if err != nil {
		b.ephemeral(s, i, renderError(err))
		return
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: cbVerifyModal + sessionId,
			Title:    "License key for " + truncate(productName, 30),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "license_key",
						Label:       "License key",
						Style:       discordgo.TextInputShort,
						Placeholder: "XXXXX-XXXXX-XXXXX-XXXXX",
						Required:    true,
						MinLength:   23,
						MaxLength:   30,
					},
				}},
			},
		},
	})
	if err != nil {
		b.log.Warn("opening key modal", sl.Guild(i.GuildID), sl.Err(err))
	}
}

// --- Modal dispatch ---

func (b *DiscordBot) onModal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if !strings.HasPrefix(data.CustomID, cbVerifyModal) {
		b.log.Warn("unknown modal", sl.Guild(i.GuildID))
		return
	}
	sessionId := strings.TrimPrefix(data.CustomID, cbVerifyModal)

	key := ""
	if row, ok := data.Components[0].(*discordgo.ActionsRow); ok && len(row.Components) > 0 {
		if input, ok := row.Components[0].(*discordgo.TextInput); ok {
			key = input.Value
		}
	}

	b.deferEphemeral(s, i)

	userId := interactionUser(i).ID
	grant, err := b.verify.SubmitKey(ctx, i.GuildID, userId, sessionId, key)
	if err != nil {
		b.followUp(s, i, renderError(err))
		return
	}
	b.followUp(s, i, fmt.Sprintf("Verified! You now have the <@&%s> role for **%s**. Enjoy!", grant.RoleId, grant.Product))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
