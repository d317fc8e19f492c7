package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryStore implements TeamStore with the same compare-and-swap
// semantics as the Mongo store. Get returns deep copies so a retried
// mutation really starts from the stored state.
type memoryStore struct {
	mu    sync.Mutex
	teams map[primitive.ObjectID]*models.Team

	// onReplace, when set, runs before each Replace and may return an
	// error to simulate losing the race against a concurrent writer.
	onReplace func(team *models.Team) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{teams: map[primitive.ObjectID]*models.Team{}}
}

func copyTeam(team *models.Team) *models.Team {
	raw, err := bson.Marshal(team)
	if err != nil {
		panic(err)
	}
	var clone models.Team
	if err := bson.Unmarshal(raw, &clone); err != nil {
		panic(err)
	}
	return &clone
}

func (s *memoryStore) Insert(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = copyTeam(team)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, teamID primitive.ObjectID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID.Hex(), ErrNotFound)
	}
	return copyTeam(team), nil
}

func (s *memoryStore) Replace(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onReplace != nil {
		if err := s.onReplace(team); err != nil {
			return err
		}
	}
	stored, ok := s.teams[team.ID]
	if !ok {
		return fmt.Errorf("team %s: %w", team.ID.Hex(), ErrNotFound)
	}
	if stored.Version != team.Version {
		return fmt.Errorf("team %s: %w", team.ID.Hex(), ErrVersionConflict)
	}
	team.Version++
	s.teams[team.ID] = copyTeam(team)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, teamID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return fmt.Errorf("team %s: %w", teamID.Hex(), ErrNotFound)
	}
	delete(s.teams, teamID)
	return nil
}

func (s *memoryStore) contains(teamID primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.teams[teamID]
	return ok
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, notification)
}

func (n *recordingNotifier) ofType(kind string) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, note := range n.notes {
		if note.Type == kind {
			out = append(out, note)
		}
	}
	return out
}

type recordingCascade struct {
	mu      sync.Mutex
	deleted []string
}

func (c *recordingCascade) DeleteTeamArtifacts(ctx context.Context, teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, teamID)
}

type fixture struct {
	teams    *TeamService
	tasks    *TaskService
	store    *memoryStore
	notifier *recordingNotifier
	cascade  *recordingCascade
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemoryStore(),
		notifier: &recordingNotifier{},
		cascade:  &recordingCascade{},
		now:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.teams = NewTeamService(f.store, f.notifier, f.cascade)
	f.teams.now = func() time.Time { return f.now }
	f.tasks = NewTaskService(f.teams)
	return f
}

// seedTeam stores a team with the given roster; the first member leads.
func (f *fixture) seedTeam(t *testing.T, status models.TeamStatus, members ...string) *models.Team {
	t.Helper()
	team := &models.Team{
		ID:             primitive.NewObjectID(),
		Name:           "apollo",
		LeaderID:       members[0],
		Members:        members,
		Status:         status,
		MemberRequests: []models.MemberRequest{},
		Tasks:          []models.Task{},
		CreatedAt:      f.now.Add(-24 * time.Hour),
	}
	require.NoError(t, f.store.Insert(context.Background(), team))
	return team
}

func (f *fixture) reload(t *testing.T, teamID primitive.ObjectID) *models.Team {
	t.Helper()
	team, err := f.store.Get(context.Background(), teamID)
	require.NoError(t, err)
	return team
}

// seedTask appends a task directly to the stored team and returns its id.
func (f *fixture) seedTask(t *testing.T, teamID primitive.ObjectID, assigneeID string, status models.TaskStatus) primitive.ObjectID {
	t.Helper()
	team := f.reload(t, teamID)
	task := models.Task{
		ID:                primitive.NewObjectID(),
		Description:       "write integration tests",
		AssigneeID:        assigneeID,
		Deadline:          f.now.Add(7 * 24 * time.Hour),
		Status:            status,
		VerificationVotes: []string{},
		ReworkVotes:       []string{},
	}
	team.Tasks = append(team.Tasks, task)
	require.NoError(t, f.store.Replace(context.Background(), team))
	return task.ID
}
