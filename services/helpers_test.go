package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/notices"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
	"github.com/edudati/openheal-research/testutil"
)

var superuser = Principal{ResearcherID: "root", IsSuperuser: true}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notices.Message
	rooms    []string
}

func (n *recordingNotifier) BroadcastToRoom(roomID string, message interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms = append(n.rooms, roomID)
	n.messages = append(n.messages, message.(notices.Message))
}

func (n *recordingNotifier) received() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Payload.(Notice))
	}
	return out
}

// staticSource serves a fixed set of matches, or an error.
type staticSource struct {
	matches []openheal.Match
	err     error
}

func (s *staticSource) FetchMatches(ctx context.Context, userID int64) ([]openheal.Match, error) {
	return s.matches, s.err
}

type failingSyncer struct{ err error }

func (f failingSyncer) SyncParticipant(ctx context.Context, p *models.Participant) (int, error) {
	return 0, &SyncError{ParticipantID: p.ID, Err: f.err}
}

type testEnv struct {
	local        *sql.DB
	source       *sql.DB
	openheal     *openheal.Source
	notifier     *recordingNotifier
	participants repositories.ParticipantRepository
	matches      repositories.MatchRepository
	studies      repositories.StudyRepository
	researchers  repositories.ResearcherRepository
	policy       *AccessPolicy
	sync         *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	local := testutil.OpenLocal(t)
	source := testutil.OpenSource(t)
	env := &testEnv{
		local:        local,
		source:       source,
		openheal:     openheal.NewSource(source),
		notifier:     &recordingNotifier{},
		participants: repositories.NewPostgresParticipantRepository(local),
		matches:      repositories.NewPostgresMatchRepository(local),
		studies:      repositories.NewPostgresStudyRepository(local),
		researchers:  repositories.NewPostgresResearcherRepository(local),
	}
	env.policy = NewAccessPolicy(env.researchers)
	env.sync = NewSyncService(local, env.openheal, env.matches, discardLogger())
	return env
}

func (e *testEnv) participantService(syncer MatchSyncer) *ParticipantService {
	if syncer == nil {
		syncer = e.sync
	}
	return NewParticipantService(e.local, e.participants, e.studies, e.matches, e.openheal, syncer, e.policy, e.notifier, discardLogger())
}

// seedMatches adds n OpenHeal matches for userID with ids prefix-1..prefix-n.
func (e *testEnv) seedMatches(t *testing.T, userID int64, prefix string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		testutil.AddSourceMatch(t, e.source, testutil.SourceMatch{
			ID:          prefix + "-" + string(rune('0'+i)),
			UserID:      userID,
			PresetID:    testutil.IntPtr(i),
			ResultID:    testutil.StringPtr("win"),
			Date:        "2024-08-2" + string(rune('0'+i)) + "T10:00:00Z",
			Resolutions: []string{"1920x1080"},
		})
	}
}
