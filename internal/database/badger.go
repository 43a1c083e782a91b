package database

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/ftauth/identity/internal/model"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// BadgerDB holds a connection to a Badger backend.
type BadgerDB struct {
	InMemory bool
	DB       *badger.DB
}

const (
	prefixUser  = "user"
	prefixEmail = "email"

	// maxConflictRetries bounds how often a single-record update is replayed
	// after losing an optimistic transaction race.
	maxConflictRetries = 5
)

func makeUserKey(id string) []byte {
	return makeKey(prefixUser, id)
}

func makeEmailKey(email string) []byte {
	return makeKey(prefixEmail, email)
}

func makeKey(prefix, id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", prefix, id))
}

// BadgerOptions configures a Badger backend.
type BadgerOptions struct {
	Dir      string
	InMemory bool // useful in tests, for example
}

// NewBadgerDB creates a new database with a Badger backend.
func NewBadgerDB(opts BadgerOptions) (*BadgerDB, error) {
	path := opts.Dir
	if opts.InMemory {
		path = ""
	}
	badgerOpts := badger.DefaultOptions(path).
		WithInMemory(opts.InMemory).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerDB{DB: db, InMemory: opts.InMemory}, nil
}

// Close handles closing all connections to the database.
func (db *BadgerDB) Close() error {
	return db.DB.Close()
}

// Reset clears the database. Only used in tests.
func (db *BadgerDB) Reset() error {
	return db.DB.DropAll()
}

func getUser(txn *badger.Txn, id string) (*model.User, error) {
	item, err := txn.Get(makeUserKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	var user model.User
	err = item.Value(func(v []byte) error {
		return bson.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decoding user %s", id)
	}
	return &user, nil
}

func setUser(txn *badger.Txn, user *model.User) error {
	b, err := bson.Marshal(user)
	if err != nil {
		return err
	}
	return txn.Set(makeUserKey(user.ID), b)
}

// CreateUser registers a new user. The email index key is written in the same
// transaction, so two concurrent registrations of one email cannot both commit.
func (db *BadgerDB) CreateUser(ctx context.Context, user *model.User) error {
	if err := prepareNewUser(user); err != nil {
		return err
	}
	err := db.DB.Update(func(txn *badger.Txn) error {
		emailKey := makeEmailKey(user.Email)
		if _, err := txn.Get(emailKey); err == nil {
			return ErrDuplicateEmail
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if _, err := txn.Get(makeUserKey(user.ID)); err == nil {
			return errors.Errorf("user %s already exists", user.ID)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return setUser(txn, user)
	})
	if err == badger.ErrConflict {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByID retrieves user's info based off an ID.
func (db *BadgerDB) GetUserByID(ctx context.Context, id string) (user *model.User, err error) {
	err = db.DB.View(func(txn *badger.Txn) error {
		user, err = getUser(txn, id)
		return err
	})
	return
}

// GetUserByEmail retrieves user's info based off an email.
func (db *BadgerDB) GetUserByEmail(ctx context.Context, email string) (user *model.User, err error) {
	err = db.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeEmailKey(email))
		if err == badger.ErrKeyNotFound {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	return
}

// ListUsers returns every user, ordered by ID.
func (db *BadgerDB) ListUsers(ctx context.Context) ([]*model.User, error) {
	users := make([]*model.User, 0)
	err := db.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := makeUserKey("")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user model.User
			err := it.Item().Value(func(v []byte) error {
				return bson.Unmarshal(v, &user)
			})
			if err != nil {
				return err
			}
			users = append(users, &user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// updateUser applies fn to the stored user inside a read-write transaction,
// replaying it when another writer commits to the same record first.
func (db *BadgerDB) updateUser(ctx context.Context, id string, fn func(user *model.User) error) (*model.User, error) {
	var updated *model.User
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = db.DB.Update(func(txn *badger.Txn) error {
			user, err := getUser(txn, id)
			if err != nil {
				return err
			}
			if err := fn(user); err != nil {
				return err
			}
			updated = user
			return setUser(txn, user)
		})
		if err != badger.ErrConflict {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetProvider records how the user last authenticated.
func (db *BadgerDB) SetProvider(ctx context.Context, id string, provider model.Provider) (*model.User, error) {
	return db.updateUser(ctx, id, func(user *model.User) error {
		user.Provider = provider
		return nil
	})
}

// UpdateRole changes the user's role.
func (db *BadgerDB) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	if !role.IsValid() {
		return nil, errors.Wrapf(model.ErrInvalidUser, "invalid role %q", role)
	}
	return db.updateUser(ctx, id, func(user *model.User) error {
		user.Role = role
		return nil
	})
}

// UpdatePasswordHash replaces the user's stored password digest.
func (db *BadgerDB) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := db.updateUser(ctx, id, func(user *model.User) error {
		user.PasswordHash = passwordHash
		return nil
	})
	return err
}

// AppendLog appends an activity entry to the user's log.
func (db *BadgerDB) AppendLog(ctx context.Context, id string, entry model.LogEntry) error {
	_, err := db.updateUser(ctx, id, func(user *model.User) error {
		if n := len(user.Logs); n > 0 && entry.Timestamp.Before(user.Logs[n-1].Timestamp) {
			entry.Timestamp = user.Logs[n-1].Timestamp
		}
		user.Logs = append(user.Logs, entry)
		return nil
	})
	return err
}
