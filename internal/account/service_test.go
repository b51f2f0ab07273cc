package account

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memRepository struct {
	mu     sync.Mutex
	byName map[string]Account
	nextID int64
}

func newMemRepository() *memRepository {
	return &memRepository{byName: make(map[string]Account)}
}

func (m *memRepository) Create(_ context.Context, a Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[a.Username]; ok {
		return nil, ErrAccountExists
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	m.byName[a.Username] = a
	return &a, nil
}

func (m *memRepository) GetByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byName[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func newTestService(t *testing.T) (*Service, *memRepository) {
	t.Helper()
	repo := newMemRepository()
	svc, err := NewService(repo, NewTokens("test-secret", "clinic-request-desk", time.Hour), zerolog.Nop(), WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	return svc, repo
}

func TestRegister(t *testing.T) {
	svc, repo := newTestService(t)

	acc, err := svc.Register(context.Background(), Registration{
		Username: " recepcion ",
		Email:    "Recepcion@Clinic.example",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, "recepcion", acc.Username)
	assert.Equal(t, "recepcion@clinic.example", acc.Email)
	assert.NotEqual(t, "s3cret-pass", acc.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.byName["recepcion"].PasswordHash), []byte("s3cret-pass")))

	_, err = svc.Register(context.Background(), Registration{Username: "recepcion", Email: "x@clinic.example", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestRegister_Validation(t *testing.T) {
	svc, repo := newTestService(t)

	cases := []struct {
		name  string
		in    Registration
		field string
	}{
		{"missing username", Registration{Email: "a@b.co", Password: "longenough"}, "username"},
		{"bad email", Registration{Username: "a", Email: "nope", Password: "longenough"}, "email"},
		{"short password", Registration{Username: "a", Email: "a@b.co", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, repo.byName)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), Registration{Username: "recepcion", Email: "r@clinic.example", Password: "s3cret-pass"})
	require.NoError(t, err)

	sess, err := svc.Login(context.Background(), "recepcion", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	claims, err := svc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "recepcion", claims.Username)
	assert.Equal(t, "1", claims.Subject)
}

func TestLogin_Failures(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), Registration{Username: "recepcion", Email: "r@clinic.example", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "recepcion", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// unknown users get the same answer
	_, err = svc.Login(context.Background(), "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokens_Verify(t *testing.T) {
	tokens := NewTokens("test-secret", "clinic-request-desk", time.Hour)
	acc := Account{ID: 7, Username: "recepcion"}

	raw, _, err := tokens.Issue(acc)
	require.NoError(t, err)

	_, err = tokens.Verify(raw)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other-secret", "clinic-request-desk", time.Hour).Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokens("test-secret", "someone-else", time.Hour).Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokens("test-secret", "clinic-request-desk", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify(strings.Repeat("x", 20))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
