package users_test

import (
	"context"
	"sync"
	"testing"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"ms-booking/internal/testutil"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUsersFiltersByRole(t *testing.T) {
	bunDB := testutil.NewSQLiteDB(t)
	admin := testutil.SeedUser(t, bunDB, models.RoleAdmin)
	testutil.SeedUser(t, bunDB, models.RoleUser)
	testutil.SeedUser(t, bunDB, models.RoleUser)
	svc := users.NewService(usersdb.New(bunDB), nil)
	ctx := context.Background()

	admins, err := svc.ListUsers(ctx, " ADMIN ")
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, admin.ID, admins[0].ID)

	regular, err := svc.ListUsers(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, regular, 2)

	for _, role := range []string{"", "superuser"} {
		all, err := svc.ListUsers(ctx, role)
		require.NoError(t, err)
		assert.Len(t, all, 3, role)
	}
}

func TestDeleteUser(t *testing.T) {
	bunDB := testutil.NewSQLiteDB(t)
	first := testutil.SeedUser(t, bunDB, models.RoleAdmin)
	second := testutil.SeedUser(t, bunDB, models.RoleAdmin)
	member := testutil.SeedUser(t, bunDB, models.RoleUser)
	svc := users.NewService(usersdb.New(bunDB), nil)
	ctx := context.Background()
	caller := models.Principal{ID: first.ID, Role: models.RoleAdmin}

	require.NoError(t, svc.DeleteUser(ctx, caller, member.ID))
	err := svc.DeleteUser(ctx, caller, member.ID)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	require.NoError(t, svc.DeleteUser(ctx, caller, second.ID))

	err = svc.DeleteUser(ctx, caller, first.ID)
	assert.ErrorIs(t, err, users.ErrLastAdmin)
	assert.ErrorIs(t, err, booking.ErrValidation)

	left, err := svc.ListUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, first.ID, left[0].ID)

	err = svc.DeleteUser(ctx, caller, "  ")
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestConcurrentAdminDeletesKeepOneAdmin(t *testing.T) {
	bunDB := testutil.NewSQLiteDB(t)
	a := testutil.SeedUser(t, bunDB, models.RoleAdmin)
	b := testutil.SeedUser(t, bunDB, models.RoleAdmin)
	svc := users.NewService(usersdb.New(bunDB), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = svc.DeleteUser(ctx, models.Principal{ID: id, Role: models.RoleAdmin}, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	admins, err := svc.ListUsers(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}
