package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyverify/entity"
	"keyverify/internal/crypt"
	"keyverify/internal/database"
	"keyverify/internal/payhip"
	"keyverify/internal/platform"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[string]*entity.Product
	licenses map[string]*entity.VerifiedLicense // guild:user:product
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[string]*entity.Product),
		licenses: make(map[string]*entity.VerifiedLicense),
	}
}

func (s *fakeStore) addProduct(p *entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.GuildId+":"+p.Name] = p
}

func (s *fakeStore) GetProduct(_ context.Context, guildId, name string) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[guildId+":"+name]; ok {
		return p, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetProducts(_ context.Context, guildId string) ([]*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Product
	for _, p := range s.products {
		if p.GuildId == guildId {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) GetLicenses(_ context.Context, guildId, userId string) ([]*entity.VerifiedLicense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.VerifiedLicense
	for _, l := range s.licenses {
		if l.GuildId == guildId && l.UserId == userId {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveLicense(_ context.Context, l *entity.VerifiedLicense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[l.GuildId+":"+l.UserId+":"+l.ProductName] = l
	return nil
}

// fakeVerifier records calls so tests can assert no network traffic
// happened on local-rejection paths.
type fakeVerifier struct {
	mu           sync.Mutex
	license      payhip.License
	verifyErr    error
	incrementErr error
	verifyCalls  int
	incCalls     int
}

func (v *fakeVerifier) Verify(_ context.Context, _, _ string) (*payhip.License, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verifyCalls++
	if v.verifyErr != nil {
		return nil, v.verifyErr
	}
	lic := v.license
	return &lic, nil
}

func (v *fakeVerifier) IncrementUsage(_ context.Context, _, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.incCalls++
	return v.incrementErr
}

type fakeGuild struct {
	mu         sync.Mutex
	roles      map[string]bool // existing role ids
	memberOf   map[string]bool // user:role
	addRoleErr error
	added      []string
}

func newFakeGuild() *fakeGuild {
	return &fakeGuild{
		roles:    map[string]bool{},
		memberOf: map[string]bool{},
	}
}

func (g *fakeGuild) ChannelExists(_ context.Context, _ string) (bool, error) { return true, nil }
func (g *fakeGuild) CreateChannel(_ context.Context, _ string, _ platform.ChannelRequest) (string, error) {
	return "", platform.ErrForbidden
}
func (g *fakeGuild) DeleteChannel(_ context.Context, _ string) error              { return nil }
func (g *fakeGuild) MessageExists(_ context.Context, _, _ string) (bool, error)   { return true, nil }
func (g *fakeGuild) SendMessage(_ context.Context, _, _ string) error             { return nil }
func (g *fakeGuild) GuildOwner(_ context.Context, _ string) (string, error)       { return "o", nil }
func (g *fakeGuild) ModeratorRoles(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (g *fakeGuild) RoleExists(_ context.Context, _, roleId string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[roleId], nil
}

func (g *fakeGuild) MemberHasRole(_ context.Context, _, userId, roleId string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.memberOf[userId+":"+roleId], nil
}

func (g *fakeGuild) AddRole(_ context.Context, _, userId, roleId string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.addRoleErr != nil {
		return g.addRoleErr
	}
	g.memberOf[userId+":"+roleId] = true
	g.added = append(g.added, userId+":"+roleId)
	return nil
}

func (g *fakeGuild) RemoveRole(_ context.Context, _, userId, roleId string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.memberOf, userId+":"+roleId)
	return nil
}

func testCipher(t *testing.T) *crypt.Cipher {
	t.Helper()
	c, err := crypt.New(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	return c
}

func testSetup(t *testing.T) (*Engine, *fakeStore, *fakeVerifier, *fakeGuild, *crypt.Cipher) {
	t.Helper()
	store := newFakeStore()
	verifier := &fakeVerifier{license: payhip.License{Enabled: true, Uses: 0}}
	guild := newFakeGuild()
	cipher := testCipher(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, verifier, guild, cipher, log), store, verifier, guild, cipher
}

func encryptedProduct(t *testing.T, cipher *crypt.Cipher, guildId, name, roleId string) *entity.Product {
	t.Helper()
	secret, err := cipher.Encrypt("product-secret-" + name)
	require.NoError(t, err)
	return &entity.Product{GuildId: guildId, Name: name, Secret: secret, RoleId: roleId, Stock: -1}
}

const goodKey = "ABCDE-12345-FGHIJ-67890"

func startSession(t *testing.T, e *Engine, guildId, product string) string {
	t.Helper()
	id, err := e.StartKeyEntry(context.Background(), guildId, product)
	require.NoError(t, err)
	return id
}

func TestBeginVerifyNothingToDo(t *testing.T) {
	e, _, verifier, _, _ := testSetup(t)

	report, err := e.BeginVerify(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Empty(t, report.Reassigned)
	assert.Empty(t, report.Pending)
	assert.Zero(t, verifier.verifyCalls)
}

func TestBeginVerifyReassignsMissingRole(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	guild.roles["role-a"] = true
	require.NoError(t, store.SaveLicense(context.Background(), &entity.VerifiedLicense{
		UserId: "u1", GuildId: "g1", ProductName: "Alpha", LicenseKey: "enc",
	}))

	report, err := e.BeginVerify(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, report.Reassigned)
	assert.Empty(t, report.Pending)
	// Recorded licenses never touch the external API.
	assert.Zero(t, verifier.verifyCalls)
	assert.Zero(t, verifier.incCalls)
	assert.True(t, guild.memberOf["u1:role-a"])
}

func TestBeginVerifySkipsHeldRole(t *testing.T) {
	e, store, _, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	guild.memberOf["u1:role-a"] = true
	require.NoError(t, store.SaveLicense(context.Background(), &entity.VerifiedLicense{
		UserId: "u1", GuildId: "g1", ProductName: "Alpha", LicenseKey: "enc",
	}))

	report, err := e.BeginVerify(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Empty(t, report.Reassigned)
	assert.Empty(t, guild.added)
}

func TestBeginVerifyPendingProducts(t *testing.T) {
	e, store, _, _, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	store.addProduct(encryptedProduct(t, cipher, "g1", "Beta", "role-b"))

	report, err := e.BeginVerify(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, report.Pending)
}

func TestSubmitKeyHappyPath(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	guild.roles["role-a"] = true

	grant, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), "  "+goodKey+"  ")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", grant.Product)
	assert.Equal(t, "role-a", grant.RoleId)

	assert.Equal(t, 1, verifier.verifyCalls)
	assert.Equal(t, 1, verifier.incCalls)
	assert.True(t, guild.memberOf["u1:role-a"])

	// Persisted record round-trips to the submitted key.
	licenses, err := store.GetLicenses(context.Background(), "g1", "u1")
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	plain, err := cipher.Decrypt(licenses[0].LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, goodKey, plain)
}

func TestSubmitKeyBadFormatIsLocal(t *testing.T) {
	e, store, verifier, _, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))

	for _, key := range []string{
		"abcde-12345-fghij-67890",
		"ABCD-12345-FGHIJ-67890",
		"ABCDE12345FGHIJ67890",
	} {
		_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), key)
		assert.ErrorIs(t, err, ErrKeyFormat, key)
	}
	// Malformed keys cost zero external calls.
	assert.Zero(t, verifier.verifyCalls)
	assert.Zero(t, verifier.incCalls)
}

func TestSubmitKeyExpiredSession(t *testing.T) {
	e, _, _, _, _ := testSetup(t)
	_, err := e.SubmitKey(context.Background(), "g1", "u1", "bogus-session", goodKey)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSubmitKeyDisabledLicense(t *testing.T) {
	e, store, verifier, _, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	verifier.license = payhip.License{Enabled: false, Uses: 0}

	_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), goodKey)
	assert.ErrorIs(t, err, ErrLicenseDisabled)
	assert.Zero(t, verifier.incCalls)
}

func TestSubmitKeyUsedLicense(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	guild.roles["role-a"] = true
	verifier.license = payhip.License{Enabled: true, Uses: 1}

	_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), goodKey)
	assert.ErrorIs(t, err, ErrLicenseUsed)

	// No increment, no role, no record.
	assert.Zero(t, verifier.incCalls)
	assert.Empty(t, guild.added)
	licenses, _ := store.GetLicenses(context.Background(), "g1", "u1")
	assert.Empty(t, licenses)
}

func TestSubmitKeyNetworkFailure(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	verifier.verifyErr = errors.New("connection reset")

	_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), goodKey)
	require.Error(t, err)
	assert.Empty(t, guild.added)
	licenses, _ := store.GetLicenses(context.Background(), "g1", "u1")
	assert.Empty(t, licenses)
}

func TestSubmitKeyIncrementFailureIsHard(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-a"))
	guild.roles["role-a"] = true
	verifier.incrementErr = errors.New("500 internal server error")

	_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), goodKey)
	require.Error(t, err)
	assert.Empty(t, guild.added)
	licenses, _ := store.GetLicenses(context.Background(), "g1", "u1")
	assert.Empty(t, licenses)
}

func TestSubmitKeyMissingRoleMapping(t *testing.T) {
	e, store, verifier, guild, cipher := testSetup(t)
	store.addProduct(encryptedProduct(t, cipher, "g1", "Alpha", "role-gone"))
	// role-gone does not exist in the guild

	_, err := e.SubmitKey(context.Background(), "g1", "u1", startSession(t, e, "g1", "Alpha"), goodKey)
	var cfgErr *RoleConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Alpha", cfgErr.Product)
	assert.Equal(t, "role-gone", cfgErr.RoleId)

	// The increment is not retried and no record is written.
	assert.Equal(t, 1, verifier.incCalls)
	assert.Empty(t, guild.added)
	licenses, _ := store.GetLicenses(context.Background(), "g1", "u1")
	assert.Empty(t, licenses)
}

func TestStartKeyEntryUnknownProduct(t *testing.T) {
	e, _, _, _, _ := testSetup(t)
	_, err := e.StartKeyEntry(context.Background(), "g1", "Ghost")
	assert.Error(t, err)
}
