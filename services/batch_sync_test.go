package services

import (
	"context"
	"testing"

	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) batchService() *BatchSyncService {
	return NewBatchSyncService(e.participants, e.sync, e.openheal, e.notifier, discardLogger())
}

func TestBatchSyncContinuesAfterFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	testutil.AddParticipant(t, env.local, "legacy", "s-1", "old@example.org")
	testutil.AddParticipant(t, env.local, "43", "s-1", "bia@example.org")
	env.seedMatches(t, 42, "a", 2)
	env.seedMatches(t, 43, "b", 1)

	report, err := env.batchService().Run(ctx, BatchFilter{}, BatchOptions{Concurrency: 4})
	require.NoError(t, err)
	require.Len(t, report.Lines, 3)

	// listing order: by study code, then participant id
	assert.Equal(t, "42", report.Lines[0].ParticipantID)
	assert.Equal(t, 2, report.Lines[0].Created)
	assert.Equal(t, "43", report.Lines[1].ParticipantID)
	assert.Equal(t, 1, report.Lines[1].Created)
	assert.Equal(t, "legacy", report.Lines[2].ParticipantID)
	assert.ErrorIs(t, report.Lines[2].Err, openheal.ErrMalformedIdentity)

	assert.Equal(t, 3, report.TotalCreated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, testutil.CountMatches(t, env.local, ""))
	assert.Len(t, env.notifier.received(), 3)
}

func TestBatchSyncDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	env.seedMatches(t, 42, "a", 3)

	report, err := env.batchService().Run(ctx, BatchFilter{}, BatchOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.True(t, report.Lines[0].DryRun)
	assert.Equal(t, 3, report.Lines[0].External)
	assert.Equal(t, 0, report.Lines[0].Created)
	assert.Equal(t, 0, report.TotalCreated)
	assert.Equal(t, 0, testutil.CountMatches(t, env.local, ""))
	assert.Empty(t, env.notifier.received())
}

func TestBatchSyncFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	testutil.AddStudy(t, env.local, "s-2", "beta")
	testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	testutil.AddParticipant(t, env.local, "43", "s-2", "bia@example.org")
	env.seedMatches(t, 42, "a", 1)
	env.seedMatches(t, 43, "b", 2)

	report, err := env.batchService().Run(ctx, BatchFilter{StudyCode: "beta"}, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "43", report.Lines[0].ParticipantID)
	assert.Equal(t, 2, report.TotalCreated)

	report, err = env.batchService().Run(ctx, BatchFilter{ParticipantID: "42"}, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, 1, report.TotalCreated)

	report, err = env.batchService().Run(ctx, BatchFilter{ParticipantID: "404"}, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
}

func TestBatchSyncSourceDownReportsEveryParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	testutil.AddStudy(t, env.local, "s-1", "alpha")
	testutil.AddParticipant(t, env.local, "42", "s-1", "ana@example.org")
	testutil.AddParticipant(t, env.local, "43", "s-1", "bia@example.org")
	require.NoError(t, env.source.Close())

	report, err := env.batchService().Run(ctx, BatchFilter{}, BatchOptions{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	for _, line := range report.Lines {
		assert.ErrorIs(t, line.Err, ErrSyncFailed)
	}

	msgs := env.notifier.received()
	require.Len(t, msgs, 2)
	assert.Equal(t, NoticeError, msgs[0].Level)
}
