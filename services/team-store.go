package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shuvam-kayal/Devember-CollabQuest/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TeamStore is the aggregate store. Replace must fail with
// ErrVersionConflict when the stored document no longer carries the
// version the caller loaded, so concurrent votes on one team serialize
// through a compare-and-swap instead of silently losing updates.
type TeamStore interface {
	Insert(ctx context.Context, team *models.Team) error
	Get(ctx context.Context, teamID primitive.ObjectID) (*models.Team, error)
	Replace(ctx context.Context, team *models.Team) error
	Delete(ctx context.Context, teamID primitive.ObjectID) error
}

type MongoTeamStore struct {
	TeamsCollection *mongo.Collection
}

func NewMongoTeamStore(teamsCollection *mongo.Collection) *MongoTeamStore {
	return &MongoTeamStore{TeamsCollection: teamsCollection}
}

func (s *MongoTeamStore) Insert(ctx context.Context, team *models.Team) error {
	result, err := s.TeamsCollection.InsertOne(ctx, team)
	if err != nil {
		return fmt.Errorf("failed to create team: %v", err)
	}
	team.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *MongoTeamStore) Get(ctx context.Context, teamID primitive.ObjectID) (*models.Team, error) {
	var team models.Team
	err := s.TeamsCollection.FindOne(ctx, bson.M{"_id": teamID}).Decode(&team)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("team %s: %w", teamID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("error fetching team: %v", err)
	}
	return &team, nil
}

// Replace writes the aggregate back, matching on the version it was
// loaded with. On success the in-memory version is bumped to match the
// stored document.
func (s *MongoTeamStore) Replace(ctx context.Context, team *models.Team) error {
	loadedVersion := team.Version
	team.Version = loadedVersion + 1

	filter := bson.M{"_id": team.ID, "version": loadedVersion}
	result, err := s.TeamsCollection.ReplaceOne(ctx, filter, team)
	if err != nil {
		team.Version = loadedVersion
		return fmt.Errorf("failed to save team: %v", err)
	}
	if result.MatchedCount == 0 {
		team.Version = loadedVersion
		return fmt.Errorf("team %s: %w", team.ID.Hex(), ErrVersionConflict)
	}
	return nil
}

func (s *MongoTeamStore) Delete(ctx context.Context, teamID primitive.ObjectID) error {
	result, err := s.TeamsCollection.DeleteOne(ctx, bson.M{"_id": teamID})
	if err != nil {
		return fmt.Errorf("failed to delete team: %v", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("team %s: %w", teamID.Hex(), ErrNotFound)
	}
	return nil
}
