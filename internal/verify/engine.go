// Package verify authenticates product ownership: it reconciles roles
// for licenses already on record without touching the network, and
// runs the verify → increment → role-grant pipeline for new keys
// against the external licensing API.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"keyverify/entity"
	"keyverify/internal/crypt"
	"keyverify/internal/database"
	"keyverify/internal/payhip"
	"keyverify/internal/platform"
	"keyverify/lib/sl"
)

const sessionTTL = 15 * time.Minute

var (
	// ErrKeyFormat rejects malformed keys locally, before any network
	// call.
	ErrKeyFormat = errors.New("verify: license key format is invalid")
	// ErrLicenseDisabled covers disabled and unknown licenses.
	ErrLicenseDisabled = errors.New("verify: license is disabled or unknown")
	// ErrLicenseUsed rejects keys with nonzero prior uses.
	ErrLicenseUsed = errors.New("verify: license has already been used")
	// ErrSessionExpired means the selection handle aged out before the
	// modal was submitted.
	ErrSessionExpired = errors.New("verify: selection expired, start over")
)

// RoleConfigError is a permanent configuration failure: the role
// mapped to the product no longer exists. Distinct from transient
// network failures so the owner gets a "fix your setup" message.
type RoleConfigError struct {
	Product string
	RoleId  string
}

func (e *RoleConfigError) Error() string {
	return fmt.Sprintf("role %s configured for product %q does not exist", e.RoleId, e.Product)
}

// Store defines the persistence the engine depends on.
// Implemented by internal/database.
type Store interface {
	GetProduct(ctx context.Context, guildId, name string) (*entity.Product, error)
	GetProducts(ctx context.Context, guildId string) ([]*entity.Product, error)
	GetLicenses(ctx context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error)
	SaveLicense(ctx context.Context, l *entity.VerifiedLicense) error
}

// Verifier is the external licensing API surface the engine consumes.
// Implemented by internal/payhip.
type Verifier interface {
	Verify(ctx context.Context, productSecret, licenseKey string) (*payhip.License, error)
	IncrementUsage(ctx context.Context, productSecret, licenseKey string) error
}

// Report is the outcome of the verify-button scan: roles re-granted
// from recorded licenses, and products still open for verification.
type Report struct {
	Reassigned []string
	Pending    []string
}

// Grant is a successful verification.
type Grant struct {
	Product string
	RoleId  string
}

type Engine struct {
	store    Store
	verifier Verifier
	guild    platform.Platform
	cipher   *crypt.Cipher
	sessions *sessionCache
	log      *slog.Logger
}

func NewEngine(store Store, verifier Verifier, guild platform.Platform, cipher *crypt.Cipher, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		verifier: verifier,
		guild:    guild,
		cipher:   cipher,
		sessions: newSessionCache(sessionTTL),
		log:      log.With(sl.Module("verify")),
	}
}

// BeginVerify handles the verify button: re-grants missing roles for
// recorded licenses with no external call, and collects the products
// the user has not verified yet.
func (e *Engine) BeginVerify(ctx context.Context, guildId, userId string) (*Report, error) {
	products, err := e.store.GetProducts(ctx, guildId)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	licenses, err := e.store.GetLicenses(ctx, guildId, userId)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	owned := make(map[string]bool, len(licenses))
	for _, l := range licenses {
		owned[l.ProductName] = true
	}

	report := &Report{}
	for _, p := range products {
		if !owned[p.Name] {
			report.Pending = append(report.Pending, p.Name)
			continue
		}
		hasRole, err := e.guild.MemberHasRole(ctx, guildId, userId, p.RoleId)
		if err != nil {
			return nil, fmt.Errorf("check role: %w", err)
		}
		if hasRole {
			continue
		}
		if err = e.guild.AddRole(ctx, guildId, userId, p.RoleId); err != nil {
			e.log.Warn("reassigning role",
				sl.Guild(guildId), sl.User(userId), sl.Product(p.Name), sl.Err(err))
			continue
		}
		report.Reassigned = append(report.Reassigned, p.Name)
	}
	return report, nil
}

// StartKeyEntry registers the chosen product and returns a short
// session handle the key modal carries in its custom id.
func (e *Engine) StartKeyEntry(ctx context.Context, guildId, product string) (string, error) {
	if _, err := e.store.GetProduct(ctx, guildId, product); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", fmt.Errorf("product %q no longer exists", product)
		}
		return "", fmt.Errorf("load product: %w", err)
	}
	return e.sessions.put(product), nil
}

// SubmitKey runs the verification pipeline for a submitted key. The
// usage increment is the commit point: after it succeeds the key is
// spent even if a later step fails.
func (e *Engine) SubmitKey(ctx context.Context, guildId, userId, sessionId, key string) (*Grant, error) {
	productName, ok := e.sessions.take(sessionId)
	if !ok {
		return nil, ErrSessionExpired
	}

	key = strings.TrimSpace(key)
	if !ValidKeyFormat(key) {
		return nil, ErrKeyFormat
	}

	product, err := e.store.GetProduct(ctx, guildId, productName)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	secret, err := e.cipher.Decrypt(product.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt product secret: %w", err)
	}

	license, err := e.verifier.Verify(ctx, secret, key)
	if err != nil {
		return nil, fmt.Errorf("verify license: %w", err)
	}
	if !license.Enabled {
		return nil, ErrLicenseDisabled
	}
	if license.Uses > 0 {
		return nil, ErrLicenseUsed
	}

	if err = e.verifier.IncrementUsage(ctx, secret, key); err != nil {
		return nil, fmt.Errorf("consume license: %w", err)
	}

	roleOk, err := e.guild.RoleExists(ctx, guildId, product.RoleId)
	if err != nil {
		return nil, fmt.Errorf("check role: %w", err)
	}
	if !roleOk {
		// The use is consumed upstream; not retried here, the owner
		// has to repair the mapping and reset the key.
		e.log.Error("role mapping is gone",
			sl.Guild(guildId), sl.Product(product.Name), slog.String("role_id", product.RoleId))
		return nil, &RoleConfigError{Product: product.Name, RoleId: product.RoleId}
	}

	if err = e.guild.AddRole(ctx, guildId, userId, product.RoleId); err != nil {
		return nil, fmt.Errorf("grant role: %w", err)
	}

	encryptedKey, err := e.cipher.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt license key: %w", err)
	}
	if err = e.store.SaveLicense(ctx, &entity.VerifiedLicense{
		UserId:      userId,
		GuildId:     guildId,
		ProductName: product.Name,
		LicenseKey:  encryptedKey,
	}); err != nil {
		return nil, fmt.Errorf("save license record: %w", err)
	}

	e.log.Info("license verified",
		sl.Guild(guildId), sl.User(userId), sl.Product(product.Name))
	return &Grant{Product: product.Name, RoleId: product.RoleId}, nil
}
