package keys_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kiranshivaraju/apihub/internal/keys"
	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memKeys struct {
	byPrefix  map[string][]*models.APIKey
	createErr []error
	created   []*models.APIKey
	findErr   error
}

func (m *memKeys) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	return m.byPrefix[prefix], m.findErr
}

func (m *memKeys) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	m.created = append(m.created, key)
	return nil
}

func TestNewSecret_Format(t *testing.T) {
	secret, err := keys.NewSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, "sk_live_"))
	assert.Len(t, secret, len("sk_live_")+27)
	assert.NotContains(t, secret, "=")

	other, err := keys.NewSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestNewID_Format(t *testing.T) {
	id, err := keys.NewID()
	require.NoError(t, err)
	assert.Regexp(t, `^key_[0-9a-f]{16}$`, id)
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "sk_live_abcdefgh", keys.Prefix("sk_live_abcdefghijklmnop"))
	assert.Equal(t, "", keys.Prefix("sk_live_abc"))
	assert.Equal(t, "", keys.Prefix("pk_test_abcdefghijklmnop"))
	assert.Equal(t, "", keys.Prefix(""))
}

func TestHashAndVerify(t *testing.T) {
	hash, err := keys.Hash("sk_live_secretvalue12345", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "sk_live_secretvalue12345", hash)
	assert.True(t, keys.Verify(hash, "sk_live_secretvalue12345"))
	assert.False(t, keys.Verify(hash, "sk_live_secretvalue12346"))
}

func TestLookup(t *testing.T) {
	secret := "sk_live_abcdefghijklmnopqrstu"
	hash, err := keys.Hash(secret, bcrypt.MinCost)
	require.NoError(t, err)
	stored := &models.APIKey{ID: "key_1", KeyPrefix: keys.Prefix(secret), KeyHash: hash, IsActive: false}
	finder := &memKeys{byPrefix: map[string][]*models.APIKey{stored.KeyPrefix: {stored}}}

	t.Run("match returns key even when inactive", func(t *testing.T) {
		got, err := keys.Lookup(context.Background(), finder, secret)
		require.NoError(t, err)
		assert.Equal(t, "key_1", got.ID)
	})

	t.Run("same prefix wrong secret", func(t *testing.T) {
		_, err := keys.Lookup(context.Background(), finder, "sk_live_abcdefghXXXXXXXXXXXXX")
		assert.ErrorIs(t, err, keys.ErrUnknownKey)
	})

	t.Run("malformed secret skips store", func(t *testing.T) {
		_, err := keys.Lookup(context.Background(), &memKeys{findErr: errors.New("must not be called")}, "short")
		assert.ErrorIs(t, err, keys.ErrUnknownKey)
	})

	t.Run("store failure", func(t *testing.T) {
		_, err := keys.Lookup(context.Background(), &memKeys{findErr: errors.New("db down")}, secret)
		require.Error(t, err)
		assert.NotErrorIs(t, err, keys.ErrUnknownKey)
	})
}

func TestIssuer_Issue(t *testing.T) {
	m := &memKeys{}
	issued, err := keys.NewIssuer(m, bcrypt.MinCost).Issue(context.Background(), "production")
	require.NoError(t, err)

	require.Len(t, m.created, 1)
	key := m.created[0]
	assert.Equal(t, "production", key.Name)
	assert.True(t, key.IsActive)
	assert.Zero(t, key.RequestCount)
	assert.Equal(t, keys.Prefix(issued.Secret), key.KeyPrefix)
	assert.True(t, keys.Verify(key.KeyHash, issued.Secret))
	assert.NotContains(t, key.KeyHash, issued.Secret)
}

func TestIssuer_RetriesPrefixCollision(t *testing.T) {
	m := &memKeys{createErr: []error{store.ErrDuplicateKey, nil}}
	issued, err := keys.NewIssuer(m, bcrypt.MinCost).Issue(context.Background(), "retry")
	require.NoError(t, err)
	require.Len(t, m.created, 1)
	assert.Equal(t, m.created[0], issued.Key)
}

func TestIssuer_GivesUpAfterRepeatedCollisions(t *testing.T) {
	m := &memKeys{createErr: []error{store.ErrDuplicateKey, store.ErrDuplicateKey, store.ErrDuplicateKey}}
	_, err := keys.NewIssuer(m, bcrypt.MinCost).Issue(context.Background(), "unlucky")
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
	assert.Empty(t, m.created)
}
