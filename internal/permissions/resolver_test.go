package permissions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/permissions"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newResolver(store *MockStore, clock *fakeClock) *permissions.Resolver {
	cache := permissions.NewRoleCache(5*time.Minute, clock.Now)
	return permissions.NewResolver(store, cache, logger.NewNopLogger())
}

func activeUser() *models.User {
	return &models.User{UserID: "u1", RoleID: "courier", IsActive: true}
}

func courierRole() *models.Role {
	return &models.Role{RoleID: "courier", Permissions: []string{"orders.update_status"}}
}

func TestUnauthenticatedAlwaysDenied(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	assert.False(t, resolver.HasPermission(context.Background(), "", "courier", "orders.update_status"))
	store.AssertNotCalled(t, "GetUser")
}

func TestInactiveActorDenied(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	store.On("GetUser", mock.Anything, "u1").Return(&models.User{UserID: "u1", RoleID: "admin", IsActive: false}, nil)

	assert.False(t, resolver.HasPermission(context.Background(), "u1", "admin", "orders.update_status"))
	store.AssertNotCalled(t, "GetRole")
}

func TestOverrideShortCircuits(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	user := activeUser()
	user.PermissionOverrides = []string{"bookings.approve"}
	store.On("GetUser", mock.Anything, "u1").Return(user, nil)

	assert.True(t, resolver.HasPermission(context.Background(), "u1", "courier", "bookings.approve"))
	store.AssertNotCalled(t, "GetRole")
}

func TestRolePermissionResolved(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	store.On("GetUser", mock.Anything, "u1").Return(activeUser(), nil)
	store.On("GetRole", mock.Anything, "courier").Return(courierRole(), nil)

	assert.True(t, resolver.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))
	assert.False(t, resolver.HasPermission(context.Background(), "u1", "courier", "bookings.approve"))
}

func TestRoleCacheAvoidsRepeatFetches(t *testing.T) {
	store := new(MockStore)
	clock := &fakeClock{current: time.Now()}
	resolver := newResolver(store, clock)

	store.On("GetUser", mock.Anything, "u1").Return(activeUser(), nil)
	store.On("GetRole", mock.Anything, "courier").Return(courierRole(), nil).Once()

	for i := 0; i < 5; i++ {
		assert.True(t, resolver.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))
	}
	store.AssertExpectations(t)
}

func TestRoleCacheExpiresAfterTTL(t *testing.T) {
	store := new(MockStore)
	clock := &fakeClock{current: time.Now()}
	resolver := newResolver(store, clock)

	store.On("GetUser", mock.Anything, "u1").Return(activeUser(), nil)
	store.On("GetRole", mock.Anything, "courier").Return(courierRole(), nil).Twice()

	assert.True(t, resolver.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))
	clock.Advance(6 * time.Minute)
	assert.True(t, resolver.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))

	store.AssertExpectations(t)
}

func TestFetchErrorsFailClosed(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	store.On("GetUser", mock.Anything, "u1").Return(nil, errors.New("connection reset"))
	assert.False(t, resolver.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))

	store2 := new(MockStore)
	resolver2 := newResolver(store2, &fakeClock{current: time.Now()})
	store2.On("GetUser", mock.Anything, "u1").Return(activeUser(), nil)
	store2.On("GetRole", mock.Anything, "courier").Return(nil, errors.New("connection reset"))
	assert.False(t, resolver2.HasPermission(context.Background(), "u1", "courier", "orders.update_status"))
}

func TestStoredRoleWinsOverClaimedRole(t *testing.T) {
	store := new(MockStore)
	resolver := newResolver(store, &fakeClock{current: time.Now()})

	// The actor claims admin but the stored role is courier; resolution
	// runs against courier.
	store.On("GetUser", mock.Anything, "u1").Return(activeUser(), nil)
	store.On("GetRole", mock.Anything, "courier").Return(courierRole(), nil)

	assert.False(t, resolver.HasPermission(context.Background(), "u1", "admin", "bookings.approve"))
	store.AssertNotCalled(t, "GetRole", mock.Anything, "admin")
}
