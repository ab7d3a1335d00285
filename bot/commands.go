package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"keyverify/entity"
	"keyverify/lib/sl"
	"keyverify/lib/validate"

	"github.com/bwmarrin/discordgo"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	manageChannels := int64(discordgo.PermissionManageChannels)
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ticketbox",
			Description:              "Post the ticket-creation message in this channel",
			DefaultMemberPermissions: &manageChannels,
		},
		{
			Name:                     "verifymessage",
			Description:              "Post the purchase-verification message in this channel",
			DefaultMemberPermissions: &manageChannels,
		},
		{
			Name:                     "product",
			Description:              "Manage purchasable products",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "add",
					Description: "Add or update a product",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "Product name", Type: discordgo.ApplicationCommandOptionString, Required: true},
						{Name: "secret", Description: "Payhip product secret key", Type: discordgo.ApplicationCommandOptionString, Required: true},
						{Name: "role", Description: "Role granted on verification", Type: discordgo.ApplicationCommandOptionRole, Required: true},
						{Name: "stock", Description: "Units available (-1 for unlimited)", Type: discordgo.ApplicationCommandOptionInteger, Required: false},
					},
				},
				{
					Name:        "remove",
					Description: "Remove a product",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "Product name", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Name:        "stock",
					Description: "Set a product's stock",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "Product name", Type: discordgo.ApplicationCommandOptionString, Required: true},
						{Name: "stock", Description: "Units available (-1 for unlimited)", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
					},
				},
				{
					Name:        "list",
					Description: "List configured products",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:                     "settings",
			Description:              "Guild configuration",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "tickets",
					Description: "Where tickets are created and logged",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name: "category", Description: "Category for ticket channels",
							Type:         discordgo.ApplicationCommandOptionChannel,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory},
						},
						{
							Name: "logchannel", Description: "Channel for open/close notices",
							Type:         discordgo.ApplicationCommandOptionChannel,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
						},
					},
				},
			},
		},
		{
			Name:                     "close",
			Description:              "Close the ticket living in this channel",
			DefaultMemberPermissions: &manageChannels,
		},
		{
			Name:                     "forceclose",
			Description:              "Close a ticket by its number",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "number", Description: "Ticket number", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
	}
}

func (b *DiscordBot) onCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "ticketbox":
		b.cmdTicketBox(ctx, s, i)
	case "verifymessage":
		b.cmdVerifyMessage(ctx, s, i)
	case "product":
		b.cmdProduct(ctx, s, i)
	case "settings":
		b.cmdSettings(ctx, s, i)
	case "close":
		b.cmdClose(s, i)
	case "forceclose":
		b.cmdForceClose(ctx, s, i)
	default:
		b.log.Warn("unknown command", slog.String("command", data.Name))
	}
}

func (b *DiscordBot) cmdTicketBox(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}
	msg, err := s.ChannelMessageSendComplex(i.ChannelID, ticketBoxMessage(), discordgo.WithContext(ctx))
	if err != nil {
		b.reportError(s, i, "ticketbox", err)
		return
	}
	err = b.db.SaveTicketBox(ctx, &entity.TicketBox{
		GuildId:   i.GuildID,
		MessageId: msg.ID,
		ChannelId: i.ChannelID,
	})
	if err != nil {
		b.reportError(s, i, "ticketbox", err)
		return
	}
	b.ephemeral(s, i, "Ticket box posted.")
}

func (b *DiscordBot) cmdVerifyMessage(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}

	// One verification message per guild: replace the previous one.
	if old, err := b.db.GetVerificationMessage(ctx, i.GuildID); err == nil {
		_ = s.ChannelMessageDelete(old.ChannelId, old.MessageId, discordgo.WithContext(ctx))
	}

	msg, err := s.ChannelMessageSendComplex(i.ChannelID, verificationMessage(), discordgo.WithContext(ctx))
	if err != nil {
		b.reportError(s, i, "verifymessage", err)
		return
	}
	err = b.db.SaveVerificationMessage(ctx, &entity.VerificationMessage{
		GuildId:   i.GuildID,
		ChannelId: i.ChannelID,
		MessageId: msg.ID,
	})
	if err != nil {
		b.reportError(s, i, "verifymessage", err)
		return
	}
	b.ephemeral(s, i, "Verification message posted.")
}

func (b *DiscordBot) cmdProduct(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}
	sub := i.ApplicationCommandData().Options[0]
	args := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, opt := range sub.Options {
		args[opt.Name] = opt
	}

	switch sub.Name {
	case "add":
		stock := entity.StockUnlimited
		if opt, ok := args["stock"]; ok {
			stock = int(opt.IntValue())
		}
		secret, err := b.cipher.Encrypt(args["secret"].StringValue())
		if err != nil {
			b.reportError(s, i, "product add", err)
			return
		}
		product := &entity.Product{
			GuildId: i.GuildID,
			Name:    args["name"].StringValue(),
			Secret:  secret,
			RoleId:  args["role"].RoleValue(nil, "").ID,
			Stock:   stock,
		}
		if err = validate.Struct(product); err != nil {
			b.ephemeral(s, i, "Invalid product: "+err.Error())
			return
		}
		if err = b.db.SaveProduct(ctx, product); err != nil {
			b.reportError(s, i, "product add", err)
			return
		}
		b.ephemeral(s, i, fmt.Sprintf("Product **%s** saved.", product.Name))

	case "remove":
		name := args["name"].StringValue()
		if err := b.db.DeleteProduct(ctx, i.GuildID, name); err != nil {
			b.reportError(s, i, "product remove", err)
			return
		}
		b.ephemeral(s, i, fmt.Sprintf("Product **%s** removed.", name))

	case "stock":
		name := args["name"].StringValue()
		stock := int(args["stock"].IntValue())
		if stock < entity.StockUnlimited {
			b.ephemeral(s, i, "Stock must be -1 (unlimited) or a non-negative count.")
			return
		}
		if err := b.db.SetStock(ctx, i.GuildID, name, stock); err != nil {
			b.reportError(s, i, "product stock", err)
			return
		}
		p := entity.Product{Stock: stock}
		b.ephemeral(s, i, fmt.Sprintf("Stock for **%s** set to %d (%s).", name, stock, p.Tier()))

	case "list":
		products, err := b.db.GetProducts(ctx, i.GuildID)
		if err != nil {
			b.reportError(s, i, "product list", err)
			return
		}
		if len(products) == 0 {
			b.ephemeral(s, i, "No products configured yet. Use `/product add`.")
			return
		}
		var sb strings.Builder
		for _, p := range products {
			fmt.Fprintf(&sb, "• **%s** — <@&%s>, %s\n", p.Name, p.RoleId, p.StockLabel())
		}
		b.ephemeral(s, i, sb.String())
	}
}

func (b *DiscordBot) cmdSettings(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}
	settings, err := b.db.GetGuildSettings(ctx, i.GuildID)
	if err != nil {
		b.reportError(s, i, "settings", err)
		return
	}
	sub := i.ApplicationCommandData().Options[0]
	for _, opt := range sub.Options {
		switch opt.Name {
		case "category":
			settings.TicketCategoryId = opt.ChannelValue(nil).ID
		case "logchannel":
			settings.LogChannelId = opt.ChannelValue(nil).ID
		}
	}
	if err = b.db.SaveGuildSettings(ctx, settings); err != nil {
		b.reportError(s, i, "settings", err)
		return
	}
	b.ephemeral(s, i, "Settings saved.")
}

// cmdClose asks for confirmation; the actual teardown happens in the
// button handler after the moderator confirms.
func (b *DiscordBot) cmdClose(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "Close this ticket? The channel will be deleted.",
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{closeConfirmRow(i.ChannelID)},
		},
	})
	if err != nil {
		b.log.Warn("sending close confirmation", sl.Guild(i.GuildID), sl.Err(err))
	}
}

func (b *DiscordBot) cmdForceClose(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireManager(s, i) {
		return
	}
	number := i.ApplicationCommandData().Options[0].IntValue()

	b.deferEphemeral(s, i)
	if err := b.tickets.ForceClose(ctx, i.GuildID, number); err != nil {
		b.followUp(s, i, renderError(err))
		return
	}
	b.followUp(s, i, fmt.Sprintf("Ticket #%d closed.", number))
}
