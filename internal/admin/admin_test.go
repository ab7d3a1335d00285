package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"keyverify/entity"
	"keyverify/internal/database"
	"keyverify/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	products map[string]*entity.Product
	licenses []*entity.VerifiedLicense
	deleted  bool
}

func (f *fakeDB) GetProduct(_ context.Context, _, name string) (*entity.Product, error) {
	p, ok := f.products[name]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (f *fakeDB) GetProducts(_ context.Context, _ string) ([]*entity.Product, error) {
	var list []*entity.Product
	for _, p := range f.products {
		list = append(list, p)
	}
	return list, nil
}

func (f *fakeDB) GetLicenses(_ context.Context, _, _ string) ([]*entity.VerifiedLicense, error) {
	return f.licenses, nil
}

func (f *fakeDB) DeleteLicenses(_ context.Context, _, _ string) ([]*entity.VerifiedLicense, error) {
	f.deleted = true
	removed := f.licenses
	f.licenses = nil
	return removed, nil
}

type fakeLicensing struct {
	decreased  []string
	disabled   []string
	disableErr error
}

func (f *fakeLicensing) DecreaseUsage(_ context.Context, key string) error {
	f.decreased = append(f.decreased, key)
	return nil
}

func (f *fakeLicensing) Disable(_ context.Context, _, key string) error {
	if f.disableErr != nil {
		return f.disableErr
	}
	f.disabled = append(f.disabled, key)
	return nil
}

type fakeRoles struct {
	platform.Platform
	removed   []string
	removeErr error
}

func (f *fakeRoles) RemoveRole(_ context.Context, _, _, roleId string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, roleId)
	return nil
}

// identity cipher: values are stored as plain text in these tests
type plainCipher struct{}

func (plainCipher) Decrypt(s string) (string, error) { return s, nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthenticateByToken(t *testing.T) {
	a := New([]string{"s3cr3t", "ops:t0ken"}, &fakeDB{}, &fakeLicensing{}, plainCipher{}, &fakeRoles{}, discard())

	user, err := a.AuthenticateByToken("s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, "api", user.Name)

	user, err = a.AuthenticateByToken("t0ken")
	require.NoError(t, err)
	assert.Equal(t, "ops", user.Name)

	_, err = a.AuthenticateByToken("nope")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestResetLicense(t *testing.T) {
	db := &fakeDB{products: map[string]*entity.Product{
		"widget": {GuildId: "g1", Name: "widget", Secret: "sec", RoleId: "r1"},
	}}
	lic := &fakeLicensing{}
	a := New(nil, db, lic, plainCipher{}, &fakeRoles{}, discard())

	err := a.ResetLicense(context.Background(), &entity.LicenseResetRequest{
		GuildId: "g1", Product: "widget", LicenseKey: "AAAAA-BBBBB-CCCCC-DDDDD",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAA-BBBBB-CCCCC-DDDDD"}, lic.decreased)
}

func TestResetLicenseUnknownProduct(t *testing.T) {
	lic := &fakeLicensing{}
	a := New(nil, &fakeDB{products: map[string]*entity.Product{}}, lic, plainCipher{}, &fakeRoles{}, discard())

	err := a.ResetLicense(context.Background(), &entity.LicenseResetRequest{
		GuildId: "g1", Product: "ghost", LicenseKey: "AAAAA-BBBBB-CCCCC-DDDDD",
	})
	require.Error(t, err)
	assert.Empty(t, lic.decreased, "unknown product must not reach the licensing API")
}

func TestBlacklistUser(t *testing.T) {
	db := &fakeDB{
		products: map[string]*entity.Product{
			"widget": {GuildId: "g1", Name: "widget", Secret: "sec-w", RoleId: "role-w"},
			"gadget": {GuildId: "g1", Name: "gadget", Secret: "sec-g", RoleId: "role-g"},
		},
		licenses: []*entity.VerifiedLicense{
			{UserId: "u1", GuildId: "g1", ProductName: "widget", LicenseKey: "KEY-W"},
			{UserId: "u1", GuildId: "g1", ProductName: "gadget", LicenseKey: "KEY-G"},
		},
	}
	lic := &fakeLicensing{}
	roles := &fakeRoles{}
	a := New(nil, db, lic, plainCipher{}, roles, discard())

	result, err := a.BlacklistUser(context.Background(), &entity.BlacklistRequest{GuildId: "g1", UserId: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Disabled)
	assert.Equal(t, 2, result.RolesRemoved)
	assert.ElementsMatch(t, []string{"widget", "gadget"}, result.Products)
	assert.ElementsMatch(t, []string{"KEY-W", "KEY-G"}, lic.disabled)
	assert.ElementsMatch(t, []string{"role-w", "role-g"}, roles.removed)
	assert.True(t, db.deleted, "local records must be purged")
}

func TestBlacklistUserUpstreamFailure(t *testing.T) {
	db := &fakeDB{
		products: map[string]*entity.Product{
			"widget": {GuildId: "g1", Name: "widget", Secret: "sec", RoleId: "role-w"},
		},
		licenses: []*entity.VerifiedLicense{
			{UserId: "u1", GuildId: "g1", ProductName: "widget", LicenseKey: "KEY-W"},
		},
	}
	lic := &fakeLicensing{disableErr: errors.New("upstream down")}
	roles := &fakeRoles{}
	a := New(nil, db, lic, plainCipher{}, roles, discard())

	result, err := a.BlacklistUser(context.Background(), &entity.BlacklistRequest{GuildId: "g1", UserId: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Disabled)
	assert.Equal(t, 1, result.RolesRemoved, "role removal proceeds even when upstream fails")
	assert.True(t, db.deleted)
}

func TestBlacklistUserRoleAlreadyGone(t *testing.T) {
	db := &fakeDB{
		products: map[string]*entity.Product{
			"widget": {GuildId: "g1", Name: "widget", Secret: "sec", RoleId: "role-w"},
		},
		licenses: []*entity.VerifiedLicense{
			{UserId: "u1", GuildId: "g1", ProductName: "widget", LicenseKey: "KEY-W"},
		},
	}
	roles := &fakeRoles{removeErr: platform.ErrNotFound}
	a := New(nil, db, &fakeLicensing{}, plainCipher{}, roles, discard())

	result, err := a.BlacklistUser(context.Background(), &entity.BlacklistRequest{GuildId: "g1", UserId: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Disabled)
	assert.Equal(t, 0, result.RolesRemoved)
	assert.True(t, db.deleted)
}
