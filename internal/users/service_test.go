package users

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rentdesk/rentdesk/internal/auth"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemoryRepo(seed ...User) *memoryRepo {
	m := &memoryRepo{users: map[int64]User{}, hashes: map[int64]string{}}
	for _, u := range seed {
		m.nextID++
		u.ID = m.nextID
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term := shared.FoldSearch(filter.Search)
	var out []User
	for id := int64(1); id <= m.nextID; id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active == "active" && !u.Active || filter.Active == "inactive" && u.Active {
			continue
		}
		if term != "" && !strings.Contains(shared.FoldSearch(u.FullName+" "+u.Email+" "+u.Role), term) {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) Create(_ context.Context, u User, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, auth.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u.ID, nil
}

func (m *memoryRepo) SetRole(_ context.Context, id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.Role = role
	m.users[id] = u
	return nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.Active = active
	m.users[id] = u
	return nil
}

type captured struct {
	entries []shared.Activity
}

func (c *captured) Record(_ context.Context, a shared.Activity) {
	c.entries = append(c.entries, a)
}

func seeded() *memoryRepo {
	return newMemoryRepo(
		User{Email: "admin@rentdesk.test", FullName: "Amélie Admin", Role: rbac.RoleAdmin, Active: true},
		User{Email: "compta@rentdesk.test", FullName: "Bruno Compta", Role: rbac.RoleAccountant, Active: true},
	)
}

func TestCreateHashesPassword(t *testing.T) {
	repo := seeded()
	log := &captured{}
	svc := NewService(repo, log)
	u, err := svc.Create(context.Background(), CreateInput{Email: " Gerant@Rentdesk.test", FullName: "Gérant", Role: rbac.RoleManager, Password: "motdepasse"})
	require.NoError(t, err)
	assert.Equal(t, "gerant@rentdesk.test", u.Email)
	assert.True(t, u.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("motdepasse")))
	require.Len(t, log.entries, 1)
	assert.Equal(t, "profile", log.entries[0].Entity)

	_, err = svc.Create(context.Background(), CreateInput{Email: "gerant@rentdesk.test", FullName: "Autre", Role: rbac.RoleManager, Password: "motdepasse"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(seeded(), nil)
	_, err := svc.Create(context.Background(), CreateInput{Email: "x", Role: "owner", Password: "court"})
	fields := shared.FieldErrors(err)
	assert.Equal(t, "Adresse email invalide.", fields["Email"])
	assert.Equal(t, "Valeur non autorisée.", fields["Role"])
	assert.Contains(t, fields, "Password")
	assert.Contains(t, fields, "FullName")
}

func TestChangeRoleRules(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ChangeRole(ctx, 1, 1, rbac.RoleManager), ErrSelfDemote)
	assert.Equal(t, rbac.RoleAdmin, repo.users[1].Role)

	require.NoError(t, svc.ChangeRole(ctx, 1, 2, rbac.RoleManager))
	assert.Equal(t, rbac.RoleManager, repo.users[2].Role)

	assert.NotNil(t, shared.FieldErrors(svc.ChangeRole(ctx, 1, 2, "owner")))
}

func TestSetActiveRules(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetActive(ctx, 1, 1, false), ErrSelfDeactivate)
	require.NoError(t, svc.SetActive(ctx, 1, 2, false))
	assert.False(t, repo.users[2].Active)
	require.NoError(t, svc.SetActive(ctx, 1, 2, true))
	assert.True(t, repo.users[2].Active)
}

func TestListFilters(t *testing.T) {
	svc := NewService(seeded(), nil)
	items, page, err := svc.List(context.Background(), ListFilter{Role: rbac.RoleAccountant})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bruno Compta", items[0].FullName)
	assert.Equal(t, 1, page.Total)

	items, _, err = svc.List(context.Background(), ListFilter{ListParams: shared.ListParams{Search: "amelie"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
}
