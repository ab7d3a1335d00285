// Package platform abstracts the guild side of Discord: channels,
// messages and roles. The engines program against this interface; the
// bot package adapts it onto a live gateway session, and tests use an
// in-memory fake.
package platform

import (
	"context"
	"errors"
)

// ErrForbidden means the bot lacks the permission for the operation.
var ErrForbidden = errors.New("platform: missing permission")

// ErrNotFound means the channel, message, role or member is gone.
var ErrNotFound = errors.New("platform: entity not found")

// PermissionOverwrite grants or denies channel access to a user or role.
type PermissionOverwrite struct {
	Id    string
	Role  bool // false means member overwrite
	Allow bool
}

// ChannelRequest describes a ticket channel to provision.
type ChannelRequest struct {
	Name       string
	CategoryId string // empty means guild root
	Overwrites []PermissionOverwrite
}

type Platform interface {
	// ChannelExists reports whether the channel is still alive; a
	// deleted channel is false, nil.
	ChannelExists(ctx context.Context, channelId string) (bool, error)
	CreateChannel(ctx context.Context, guildId string, req ChannelRequest) (channelId string, err error)
	DeleteChannel(ctx context.Context, channelId string) error
	MessageExists(ctx context.Context, channelId, messageId string) (bool, error)
	SendMessage(ctx context.Context, channelId, content string) error

	RoleExists(ctx context.Context, guildId, roleId string) (bool, error)
	MemberHasRole(ctx context.Context, guildId, userId, roleId string) (bool, error)
	AddRole(ctx context.Context, guildId, userId, roleId string) error
	RemoveRole(ctx context.Context, guildId, userId, roleId string) error

	GuildOwner(ctx context.Context, guildId string) (string, error)
	// ModeratorRoles returns the roles holding channel-management
	// capability, granted access to every ticket channel.
	ModeratorRoles(ctx context.Context, guildId string) ([]string, error)
}
