package storage

import (
	"context"
	"fmt"

	"apnaspace/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func MongoDBClient (ctx context.Context, address string, port int) (*mongo.Client, error) {
	uri := fmt.Sprintf("mongodb://%s:%d/?directConnection=true", address, port)
	clientOptions := options.Client().ApplyURI(uri)

	var err error
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %s", err.Error())
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mongodb cannot be reached after connecting: %s", err.Error())
	}
	return client, nil
}

// mongoStore implements Store on the "user" collection. Edge writes go
// through a session transaction so that the two documents touched by a
// follow or unfollow commit together or not at all.
type mongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

func NewMongoStore(client *mongo.Client) Store {
	return &mongoStore{
		client: client,
		users:  client.Database("user").Collection("user"),
	}
}

func (m *mongoStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	filter := bson.D{
		{Key: "user_id", Value: userID},
	}
	err := m.users.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return model.User{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
		}
		return model.User{}, err
	}
	return user, nil
}

func (m *mongoStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var user model.User
	filter := bson.D{
		{Key: "username", Value: username},
	}
	err := m.users.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return model.User{}, fmt.Errorf("%w: username %s", ErrNotFound, username)
		}
		return model.User{}, err
	}
	return user, nil
}

func (m *mongoStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"user_id": bson.M{"$in": userIDs},
	}
	cur, err := m.users.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *mongoStore) InsertUser(ctx context.Context, user model.User) error {
	// empty arrays, not nulls, so $addToSet works on fresh documents
	if user.Followers == nil {
		user.Followers = []string{}
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	_, err := m.users.InsertOne(ctx, user)
	return err
}

func (m *mongoStore) UpdateUser(ctx context.Context, userID string, update model.ProfileUpdate) error {
	set := bson.M{}
	if update.FirstName != "" {
		set["first_name"] = update.FirstName
	}
	if update.LastName != "" {
		set["last_name"] = update.LastName
	}
	if update.Avatar != "" {
		set["avatar"] = update.Avatar
	}
	if len(set) == 0 {
		return nil
	}
	filter := bson.D{
		{Key: "user_id", Value: userID},
	}
	res, err := m.users.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return nil
}

func (m *mongoStore) DeleteUser(ctx context.Context, userID string) error {
	filter := bson.D{
		{Key: "user_id", Value: userID},
	}
	res, err := m.users.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return nil
}

func (m *mongoStore) AddToSet(ctx context.Context, userID string, field string, memberID string) error {
	filter := bson.D{
		{Key: "user_id", Value: userID},
	}
	update := bson.M{
		"$addToSet": bson.M{field: memberID},
	}
	res, err := m.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return nil
}

func (m *mongoStore) PullFromSet(ctx context.Context, userID string, field string, memberID string) error {
	filter := bson.D{
		{Key: "user_id", Value: userID},
	}
	update := bson.M{
		"$pull": bson.M{field: memberID},
	}
	res, err := m.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	return nil
}

// Transact runs fn inside a mongo session transaction. The session
// context is handed back to fn so that every write in the closure is
// scoped to the same transaction.
func (m *mongoStore) Transact(ctx context.Context, fn func(ctx context.Context, tx SetWriter) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, m)
	})
	return err
}
