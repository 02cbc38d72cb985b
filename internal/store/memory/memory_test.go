package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/store/storetest"
)

func TestRepositoryBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return New()
	})
}

func TestNewSeededIsMirroredAndHasEveryRole(t *testing.T) {
	s := NewSeeded()

	storetest.AssertMirrored(t, s)

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	roles := map[string]bool{}
	for _, u := range users {
		roles[u.Role] = true
	}
	assert.True(t, roles[domain.RoleAdmin])
	assert.True(t, roles[domain.RolePharmacist])
	assert.True(t, roles[domain.RoleSeller])

	medicines, err := s.ListMedicines(context.Background())
	require.NoError(t, err)
	for _, m := range medicines {
		assert.True(t, domain.IsCategory(m.Category), m.Category)
	}
}
