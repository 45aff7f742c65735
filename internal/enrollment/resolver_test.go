package enrollment

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/notify"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

type fakeFleet struct {
	drivers  map[string]*fleet.Driver // по каноническому телефону
	position fleet.PositionResult
	cause    fleet.Cause
	lookups  int
}

func (f *fakeFleet) FindDriverByPhone(_ context.Context, raw string) fleet.LookupResult {
	f.lookups++
	if d, ok := f.drivers[phone.Normalize(raw)]; ok {
		return fleet.LookupResult{Found: true, Driver: d}
	}
	cause := f.cause
	if cause == "" {
		cause = fleet.CauseNotFound
	}
	return fleet.LookupResult{Cause: cause}
}

func (f *fakeFleet) ClassifyPosition(context.Context, string) fleet.PositionResult {
	return f.position
}

type recordingNotifier struct {
	mu           sync.Mutex
	applications []notify.Application
	fail         bool
}

func (n *recordingNotifier) GoalReached(context.Context, notify.GoalReached) error { return nil }

func (n *recordingNotifier) NewApplication(_ context.Context, app notify.Application) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("channel unavailable")
	}
	n.applications = append(n.applications, app)
	return nil
}

func newTestResolver(t *testing.T, f *fakeFleet) (*Resolver, database.Store, *recordingNotifier) {
	t.Helper()
	store, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	n := &recordingNotifier{}
	return NewResolver(store, f, n), store, n
}

func candidate(id int64, referrer *int64) Candidate {
	return Candidate{UserID: id, Username: "cand", FullName: "Кандидат Тестовый", FirstName: "Кандидат", ReferrerID: referrer}
}

func TestResolveNotFoundPersistsUnenrolledUser(t *testing.T) {
	ctx := context.Background()
	resolver, store, _ := newTestResolver(t, &fakeFleet{})

	out, err := resolver.Resolve(ctx, candidate(100, nil), "89991234567")
	require.NoError(t, err)
	assert.Equal(t, StatusNew, out.Status)
	assert.Equal(t, fleet.CauseNotFound, out.Cause)
	assert.Equal(t, "+79991234567", out.Phone)

	u, err := store.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.False(t, u.Enrolled)
	require.NotNil(t, u.Phone)
	assert.Equal(t, "+79991234567", *u.Phone)
	assert.Nil(t, u.ExternalDriverID)

	invited, err := store.ListReferralsDueForCheck(ctx)
	require.NoError(t, err)
	assert.Empty(t, invited)

	out, err = resolver.Resolve(ctx, candidate(100, nil), "+7 999 123-45-67")
	require.NoError(t, err)
	assert.Equal(t, StatusReturning, out.Status)
}

func TestResolveFoundCreatesReferralEdge(t *testing.T) {
	ctx := context.Background()
	f := &fakeFleet{
		drivers: map[string]*fleet.Driver{
			"+79991234567": {ID: "drv1", LastName: "Иванов", FirstName: "Иван"},
		},
		position: fleet.PositionResult{Position: models.PositionCargo, Source: fleet.SourceKeyword},
	}
	resolver, store, _ := newTestResolver(t, f)
	ref := int64(42)

	// сначала не найден, затем найден: пригласивший из второго визита сохраняется
	f.cause = fleet.CauseTimeout
	delete(f.drivers, "+79991234567")
	out, err := resolver.Resolve(ctx, candidate(100, nil), "89991234567")
	require.NoError(t, err)
	assert.Equal(t, fleet.CauseTimeout, out.Cause)

	f.drivers["+79991234567"] = &fleet.Driver{ID: "drv1", LastName: "Иванов", FirstName: "Иван"}
	out, err = resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)
	assert.Equal(t, StatusEnrolled, out.Status)
	assert.True(t, out.EdgeAdded)
	require.NotNil(t, out.ReferrerID)
	assert.Equal(t, int64(42), *out.ReferrerID)

	u, err := store.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.True(t, u.Enrolled)
	require.NotNil(t, u.ExternalDriverID)
	assert.Equal(t, "drv1", *u.ExternalDriverID)
	require.NotNil(t, u.ExternalDriverName)
	assert.Equal(t, "Иванов Иван", *u.ExternalDriverName)
	assert.Equal(t, models.PositionCargo, u.PositionOrUnknown())

	edge, err := store.GetReferral(ctx, 42, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, edge.OrderCount)
	assert.False(t, edge.Notified)
	require.NotNil(t, edge.Position)
	assert.Equal(t, models.PositionCargo, *edge.Position)

	// повторная проверка не создаёт вторую связь
	out, err = resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)
	assert.False(t, out.EdgeAdded)
}

func TestResolveFleetFailureKeepsEnrolledDriver(t *testing.T) {
	ctx := context.Background()
	f := &fakeFleet{
		drivers:  map[string]*fleet.Driver{"+79991234567": {ID: "drv1"}},
		position: fleet.PositionResult{Position: models.PositionExpress},
	}
	resolver, store, _ := newTestResolver(t, f)
	ref := int64(42)

	out, err := resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)
	require.Equal(t, StatusEnrolled, out.Status)

	for _, cause := range []fleet.Cause{fleet.CauseTimeout, fleet.CauseError} {
		delete(f.drivers, "+79991234567")
		f.cause = cause

		out, err = resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
		require.NoError(t, err)
		assert.Equal(t, StatusReturning, out.Status)
		assert.Equal(t, cause, out.Cause)

		u, err := store.GetUser(ctx, 100)
		require.NoError(t, err)
		assert.True(t, u.Enrolled, cause)
		require.NotNil(t, u.ExternalDriverID)
		assert.Equal(t, "drv1", *u.ExternalDriverID)

		due, err := store.ListReferralsDueForCheck(ctx)
		require.NoError(t, err)
		assert.Len(t, due, 1, cause)
	}

	// подтверждённый ответ «не найден» снимает водителя
	f.cause = fleet.CauseNotFound
	_, err = resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)
	u, err := store.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.False(t, u.Enrolled)
	assert.Nil(t, u.ExternalDriverID)
}

func TestResolveKeepsFirstReferrer(t *testing.T) {
	ctx := context.Background()
	f := &fakeFleet{
		drivers:  map[string]*fleet.Driver{"+79991234567": {ID: "drv1"}},
		position: fleet.PositionResult{Position: models.PositionExpress},
	}
	resolver, store, _ := newTestResolver(t, f)
	first, second := int64(42), int64(43)

	_, err := resolver.Resolve(ctx, candidate(100, &first), "89991234567")
	require.NoError(t, err)
	out, err := resolver.Resolve(ctx, candidate(100, &second), "89991234567")
	require.NoError(t, err)
	require.NotNil(t, out.ReferrerID)
	assert.Equal(t, first, *out.ReferrerID)

	_, err = store.GetReferral(ctx, second, 100)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestResolveIgnoresSelfReferral(t *testing.T) {
	ctx := context.Background()
	f := &fakeFleet{drivers: map[string]*fleet.Driver{"+79991234567": {ID: "drv1"}}}
	resolver, store, _ := newTestResolver(t, f)
	self := int64(100)

	out, err := resolver.Resolve(ctx, candidate(100, &self), "89991234567")
	require.NoError(t, err)
	assert.Nil(t, out.ReferrerID)
	assert.False(t, out.EdgeAdded)

	_, err = store.GetReferral(ctx, 100, 100)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestResolveUnknownPositionStaysUnknown(t *testing.T) {
	ctx := context.Background()
	f := &fakeFleet{drivers: map[string]*fleet.Driver{"+79991234567": {ID: "drv1", Car: fleet.Car{Brand: "Kia", Model: "Rio"}}}}
	resolver, store, _ := newTestResolver(t, f)
	ref := int64(42)

	out, err := resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)
	assert.Equal(t, models.PositionUnknown, out.Position)

	edge, err := store.GetReferral(ctx, 42, 100)
	require.NoError(t, err)
	assert.Nil(t, edge.Position)
}

func TestResolveRejectsInvalidPhone(t *testing.T) {
	f := &fakeFleet{}
	resolver, _, _ := newTestResolver(t, f)

	_, err := resolver.Resolve(context.Background(), candidate(100, nil), "12345")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Zero(t, f.lookups)
}

func TestSelectCategoryCreatesEdgeAndNotifies(t *testing.T) {
	ctx := context.Background()
	resolver, store, n := newTestResolver(t, &fakeFleet{})
	ref := int64(42)

	_, err := resolver.Resolve(ctx, candidate(100, &ref), "89991234567")
	require.NoError(t, err)

	u, err := resolver.SelectCategory(ctx, 100, models.CategoryTruckDriver)
	require.NoError(t, err)
	require.NotNil(t, u.Category)
	assert.Equal(t, models.CategoryTruckDriver, *u.Category)

	edge, err := store.GetReferral(ctx, 42, 100)
	require.NoError(t, err)
	require.NotNil(t, edge.Position)
	assert.Equal(t, models.PositionCargo, *edge.Position)

	require.Len(t, n.applications, 1)
	assert.Equal(t, "+79991234567", n.applications[0].Phone)
	require.NotNil(t, n.applications[0].ReferrerID)
	assert.Equal(t, int64(42), *n.applications[0].ReferrerID)

	_, err = resolver.SelectCategory(ctx, 100, models.Category("pilot"))
	assert.Error(t, err)
}

func TestSelectCategorySurvivesNotifierFailure(t *testing.T) {
	ctx := context.Background()
	resolver, _, n := newTestResolver(t, &fakeFleet{})
	n.fail = true

	_, err := resolver.Resolve(ctx, candidate(100, nil), "89991234567")
	require.NoError(t, err)

	u, err := resolver.SelectCategory(ctx, 100, models.CategoryFootCourier)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryFootCourier, *u.Category)
}
