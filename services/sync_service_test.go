package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncParticipantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	env.seedMatches(t, 42, "m", 3)

	n, err := env.sync.SyncParticipant(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = env.sync.SyncParticipant(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, testutil.CountMatches(t, env.local, "42"))

	m, err := env.matches.GetByID(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "42", m.ParticipantID)
	assert.Equal(t, 2, m.PresetID)
	assert.Equal(t, "win", m.ResultID)
	assert.True(t, m.IsActive)
	assert.True(t, m.IsUsed)
	assert.Nil(t, m.PhaseID)
	assert.Nil(t, m.InterventionID)
	assert.Nil(t, m.MomentID)
	require.NotNil(t, m.ScreenSize)
	assert.Equal(t, "1920x1080", *m.ScreenSize)
}

func TestSyncParticipantLeavesExistingRecordsAlone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	env.seedMatches(t, 42, "m", 1)

	_, err := env.sync.SyncParticipant(ctx, p)
	require.NoError(t, err)

	edit, err := env.matches.GetByID(ctx, "m-1")
	require.NoError(t, err)
	edit.PhaseID = testutil.IntPtr(2)
	edit.IsUsed = false
	require.NoError(t, env.matches.Save(ctx, nil, edit))

	// OpenHeal changes its copy; the local record keeps what it has
	_, err = env.source.Exec(`UPDATE "Matches" SET "ResultId" = 'lose' WHERE "Id" = 'm-1'`)
	require.NoError(t, err)
	env.seedMatches(t, 42, "n", 1)

	n, err := env.sync.SyncParticipant(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := env.matches.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "win", stored.ResultID)
	assert.Equal(t, 2, *stored.PhaseID)
	assert.False(t, stored.IsUsed)
}

func TestSyncParticipantConcurrentCallsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	env.seedMatches(t, 42, "m", 5)

	const workers = 8
	var wg sync.WaitGroup
	counts := make([]int, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts[i], errs[i] = env.sync.SyncParticipant(ctx, p)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range counts {
		require.NoError(t, errs[i])
		total += counts[i]
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, testutil.CountMatches(t, env.local, "42"))
}

func TestSyncParticipantIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")

	date := time.Date(2024, 8, 22, 10, 0, 0, 0, time.UTC)
	src := &staticSource{matches: []openheal.Match{
		{ID: "ok-1", PresetID: 1, ResultID: "win", Date: date},
		{ID: "ok-2", PresetID: 1, ResultID: "win", Date: date},
		{ID: "", PresetID: 1, ResultID: "win", Date: date}, // violates chk_match_id_not_empty
	}}
	svc := NewSyncService(env.local, src, env.matches, discardLogger())

	n, err := svc.SyncParticipant(ctx, p)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrSyncFailed)

	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "42", syncErr.ParticipantID)
	assert.Equal(t, 0, testutil.CountMatches(t, env.local, ""))
}

func TestSyncParticipantFetchFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	require.NoError(t, env.source.Close())

	_, err := env.sync.SyncParticipant(ctx, p)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, openheal.ErrExternalSourceUnavailable)
	assert.Equal(t, 0, testutil.CountMatches(t, env.local, ""))
}

func TestSyncParticipantMalformedIdentity(t *testing.T) {
	env := newTestEnv(t)
	src := &staticSource{err: errors.New("must not be called")}
	svc := NewSyncService(env.local, src, env.matches, discardLogger())

	_, err := svc.SyncParticipant(context.Background(), &models.Participant{ID: "not-a-number"})
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, openheal.ErrMalformedIdentity)

	_, err = svc.SyncParticipant(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSyncFailed)
}

func TestSyncParticipantDefaultsMissingFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	testutil.AddSourceMatch(t, env.source, testutil.SourceMatch{ID: "m-raw", UserID: 42, Date: "2024-08-22 10:30:00"})

	n, err := env.sync.SyncParticipant(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := env.matches.GetByID(ctx, "m-raw")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 8, 22, 10, 30, 0, 0, time.UTC).Equal(m.Date))
	assert.Equal(t, 0, m.PresetID)
	assert.Equal(t, "", m.ResultID)
}

func TestSyncParticipantMissingDateStoresNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	p := testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	env.seedMatches(t, 42, "m", 2)
	_, err := env.source.Exec(`INSERT INTO "Matches" ("Id", "UserDataId", "Date") VALUES ('m-undated', 42, NULL)`)
	require.NoError(t, err)

	n, err := env.sync.SyncParticipant(ctx, p)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, openheal.ErrInvalidMatch)
	assert.Equal(t, 0, testutil.CountMatches(t, env.local, "42"))
}
