package database

import (
	"context"

	"github.com/ftauth/identity/internal/model"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// MongoDB holds a connection to a MongoDB backend.
type MongoDB struct {
	client *mongo.Client
	users  *mongo.Collection
}

// MongoOptions configures a MongoDB backend.
type MongoOptions struct {
	URL  string
	Name string
}

// NewMongoDB connects to MongoDB and ensures the user indexes exist.
func NewMongoDB(ctx context.Context, opts MongoOptions) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URL))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongo")
	}
	db := &MongoDB{
		client: client,
		users:  client.Database(opts.Name).Collection(usersCollection),
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

// EnsureIndexes creates the unique email index.
func (db *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "creating email index")
}

// Close handles closing all connections to the database.
func (db *MongoDB) Close() error {
	if db.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *MongoDB) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var user model.User
	err := db.users.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *MongoDB) findOneAndSet(ctx context.Context, id string, set bson.D) (*model.User, error) {
	var user model.User
	err := db.users.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser registers a new user. Uniqueness of the email is enforced by the
// collection's unique index.
func (db *MongoDB) CreateUser(ctx context.Context, user *model.User) error {
	if err := prepareNewUser(user); err != nil {
		return err
	}
	_, err := db.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByID retrieves user's info based off an ID.
func (db *MongoDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetUserByEmail retrieves user's info based off an email.
func (db *MongoDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// ListUsers returns every user, ordered by ID.
func (db *MongoDB) ListUsers(ctx context.Context) ([]*model.User, error) {
	cursor, err := db.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	users := make([]*model.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetProvider records how the user last authenticated.
func (db *MongoDB) SetProvider(ctx context.Context, id string, provider model.Provider) (*model.User, error) {
	return db.findOneAndSet(ctx, id, bson.D{{Key: "provider", Value: provider}})
}

// UpdateRole changes the user's role.
func (db *MongoDB) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	if !role.IsValid() {
		return nil, errors.Wrapf(model.ErrInvalidUser, "invalid role %q", role)
	}
	return db.findOneAndSet(ctx, id, bson.D{{Key: "role", Value: role}})
}

// UpdatePasswordHash replaces the user's stored password digest.
func (db *MongoDB) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := db.users.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "password", Value: passwordHash}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AppendLog appends an activity entry with a single pipeline update, so
// concurrent appends to one user are never lost and the log's timestamps never
// decrease, whatever order the appends commit in.
func (db *MongoDB) AppendLog(ctx context.Context, id string, entry model.LogEntry) error {
	res, err := db.users.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		appendLogPipeline(entry),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// appendLogPipeline concatenates entry onto logs with its timestamp raised to
// the last stored timestamp when it is earlier.
func appendLogPipeline(entry model.LogEntry) mongo.Pipeline {
	logs := bson.D{{Key: "$ifNull", Value: bson.A{"$logs", bson.A{}}}}
	last := bson.D{{Key: "$ifNull", Value: bson.A{
		bson.D{{Key: "$last", Value: "$logs.timestamp"}},
		entry.Timestamp,
	}}}
	record := bson.D{
		{Key: "action", Value: bson.D{{Key: "$literal", Value: entry.Action}}},
		{Key: "timestamp", Value: bson.D{{Key: "$max", Value: bson.A{entry.Timestamp, last}}}},
		{Key: "ip", Value: bson.D{{Key: "$literal", Value: entry.IP}}},
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "logs", Value: bson.D{{Key: "$concatArrays", Value: bson.A{logs, bson.A{record}}}}},
		}}},
	}
}
