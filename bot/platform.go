package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"keyverify/internal/platform"

	"github.com/bwmarrin/discordgo"
)

// guildPlatform adapts the gateway session onto the Platform interface
// the engines consume, mapping REST errors to the platform sentinels.
type guildPlatform struct {
	session *discordgo.Session
}

func NewPlatform(session *discordgo.Session) platform.Platform {
	return &guildPlatform{session: session}
}

// mapError translates Discord REST failures: 403 means the bot lost a
// permission, 404 means the entity is gone.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", platform.ErrForbidden, restErr.Message.Message)
		case http.StatusNotFound:
			return platform.ErrNotFound
		}
	}
	return err
}

func (g *guildPlatform) ChannelExists(ctx context.Context, channelId string) (bool, error) {
	_, err := g.session.Channel(channelId, discordgo.WithContext(ctx))
	if errors.Is(mapError(err), platform.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *guildPlatform) CreateChannel(ctx context.Context, guildId string, req platform.ChannelRequest) (string, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(req.Overwrites))
	for _, ow := range req.Overwrites {
		kind := discordgo.PermissionOverwriteTypeMember
		if ow.Role {
			kind = discordgo.PermissionOverwriteTypeRole
		}
		perms := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory)
		entry := &discordgo.PermissionOverwrite{ID: ow.Id, Type: kind}
		if ow.Allow {
			entry.Allow = perms
		} else {
			entry.Deny = perms
		}
		overwrites = append(overwrites, entry)
	}

	channel, err := g.session.GuildChannelCreateComplex(guildId, discordgo.GuildChannelCreateData{
		Name:                 req.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             req.CategoryId,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return channel.ID, nil
}

func (g *guildPlatform) DeleteChannel(ctx context.Context, channelId string) error {
	_, err := g.session.ChannelDelete(channelId, discordgo.WithContext(ctx))
	return mapError(err)
}

func (g *guildPlatform) MessageExists(ctx context.Context, channelId, messageId string) (bool, error) {
	_, err := g.session.ChannelMessage(channelId, messageId, discordgo.WithContext(ctx))
	if errors.Is(mapError(err), platform.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (g *guildPlatform) SendMessage(ctx context.Context, channelId, content string) error {
	_, err := g.session.ChannelMessageSend(channelId, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (g *guildPlatform) RoleExists(ctx context.Context, guildId, roleId string) (bool, error) {
	roles, err := g.session.GuildRoles(guildId, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapError(err)
	}
	for _, role := range roles {
		if role.ID == roleId {
			return true, nil
		}
	}
	return false, nil
}

func (g *guildPlatform) MemberHasRole(ctx context.Context, guildId, userId, roleId string) (bool, error) {
	member, err := g.session.GuildMember(guildId, userId, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapError(err)
	}
	for _, id := range member.Roles {
		if id == roleId {
			return true, nil
		}
	}
	return false, nil
}

func (g *guildPlatform) AddRole(ctx context.Context, guildId, userId, roleId string) error {
	return mapError(g.session.GuildMemberRoleAdd(guildId, userId, roleId, discordgo.WithContext(ctx)))
}

func (g *guildPlatform) RemoveRole(ctx context.Context, guildId, userId, roleId string) error {
	return mapError(g.session.GuildMemberRoleRemove(guildId, userId, roleId, discordgo.WithContext(ctx)))
}

func (g *guildPlatform) GuildOwner(ctx context.Context, guildId string) (string, error) {
	guild, err := g.session.Guild(guildId, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return guild.OwnerID, nil
}

// ModeratorRoles returns every role carrying the Manage Channels
// permission; those roles get access to each ticket channel.
func (g *guildPlatform) ModeratorRoles(ctx context.Context, guildId string) ([]string, error) {
	roles, err := g.session.GuildRoles(guildId, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	var out []string
	for _, role := range roles {
		if role.Permissions&discordgo.PermissionManageChannels != 0 ||
			role.Permissions&discordgo.PermissionAdministrator != 0 {
			out = append(out, role.ID)
		}
	}
	return out, nil
}
