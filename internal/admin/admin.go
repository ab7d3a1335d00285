// Package admin is the core behind the HTTP API: token authentication
// and the moderation operations that reach outside a single guild's
// Discord surface (license resets and blacklisting).
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"keyverify/entity"
	"keyverify/internal/platform"
	"keyverify/lib/sl"
)

var ErrTokenNotFound = errors.New("token not found")

type Database interface {
	GetProduct(ctx context.Context, guildId, name string) (*entity.Product, error)
	GetProducts(ctx context.Context, guildId string) ([]*entity.Product, error)
	GetLicenses(ctx context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error)
	DeleteLicenses(ctx context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error)
}

type Licensing interface {
	DecreaseUsage(ctx context.Context, licenseKey string) error
	Disable(ctx context.Context, productSecret, licenseKey string) error
}

type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

type Admin struct {
	log      *slog.Logger
	db       Database
	lic      Licensing
	cipher   Decrypter
	platform platform.Platform
	tokens   map[string]string
}

// New builds the admin core. Tokens come from configuration either as
// bare strings or as "name:token" pairs; bare tokens authenticate as
// "api".
func New(tokens []string, db Database, lic Licensing, cipher Decrypter, p platform.Platform, log *slog.Logger) *Admin {
	byToken := make(map[string]string, len(tokens))
	for _, t := range tokens {
		name, token, found := strings.Cut(t, ":")
		if !found {
			byToken[t] = "api"
			continue
		}
		byToken[token] = name
	}
	return &Admin{
		log:      log.With(sl.Module("admin")),
		db:       db,
		lic:      lic,
		cipher:   cipher,
		platform: p,
		tokens:   byToken,
	}
}

func (a *Admin) AuthenticateByToken(token string) (*entity.ApiUser, error) {
	name, ok := a.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &entity.ApiUser{Name: name}, nil
}

// ResetLicense hands one use of the key back upstream. The product must
// exist so typoed requests fail loudly instead of silently resetting a
// key for the wrong guild.
func (a *Admin) ResetLicense(ctx context.Context, req *entity.LicenseResetRequest) error {
	if _, err := a.db.GetProduct(ctx, req.GuildId, req.Product); err != nil {
		return fmt.Errorf("product %q: %w", req.Product, err)
	}
	if err := a.lic.DecreaseUsage(ctx, req.LicenseKey); err != nil {
		return fmt.Errorf("decrease usage: %w", err)
	}
	a.log.Info("license reset",
		sl.Guild(req.GuildId),
		sl.Product(req.Product),
		sl.Secret("license_key", req.LicenseKey))
	return nil
}

// BlacklistUser disables every key the user verified with, removes the
// granted roles and purges the local records. Upstream and role
// failures are logged and counted rather than aborting: a key that is
// already disabled should not keep the rest of the cleanup from
// running.
func (a *Admin) BlacklistUser(ctx context.Context, req *entity.BlacklistRequest) (*entity.BlacklistResult, error) {
	log := a.log.With(sl.Guild(req.GuildId), sl.User(req.UserId))

	licenses, err := a.db.GetLicenses(ctx, req.GuildId, req.UserId)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}

	result := &entity.BlacklistResult{}
	for _, lc := range licenses {
		result.Products = append(result.Products, lc.ProductName)

		product, err := a.db.GetProduct(ctx, lc.GuildId, lc.ProductName)
		if err != nil {
			log.Warn("product gone, key left as is", sl.Product(lc.ProductName), sl.Err(err))
			continue
		}
		secret, err := a.cipher.Decrypt(product.Secret)
		if err != nil {
			log.Error("decrypting product secret", sl.Product(lc.ProductName), sl.Err(err))
			continue
		}
		key, err := a.cipher.Decrypt(lc.LicenseKey)
		if err != nil {
			log.Error("decrypting license key", sl.Product(lc.ProductName), sl.Err(err))
			continue
		}

		if err = a.lic.Disable(ctx, secret, key); err != nil {
			log.Warn("disabling key upstream", sl.Product(lc.ProductName), sl.Err(err))
		} else {
			result.Disabled++
		}

		err = a.platform.RemoveRole(ctx, req.GuildId, req.UserId, product.RoleId)
		switch {
		case err == nil:
			result.RolesRemoved++
		case errors.Is(err, platform.ErrNotFound):
			// member or role already gone
		default:
			log.Warn("removing role", sl.Product(lc.ProductName), sl.Err(err))
		}
	}

	if _, err = a.db.DeleteLicenses(ctx, req.GuildId, req.UserId); err != nil {
		return result, fmt.Errorf("purge licenses: %w", err)
	}
	log.Info("user blacklisted", slog.Int("keys", len(licenses)))

	return result, nil
}

func (a *Admin) Products(ctx context.Context, guildId string) ([]*entity.Product, error) {
	return a.db.GetProducts(ctx, guildId)
}
