package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"shipboard/pkg/logger"
	"shipboard/pkg/models"
)

var db *pebble.DB

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("not found")

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_durable_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("durable_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("durable_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("durable_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func accountKey(id string) []byte {
	return []byte("account:" + id)
}

func usernameKey(name string) []byte {
	return []byte("username:" + strings.ToLower(name))
}

// SaveAccount persists an account row and maintains the username index.
// When the username changed, the old index entry is removed in the same
// batch so lookups never see both names at once.
func SaveAccount(a models.Account) error {
	if db == nil {
		return fmt.Errorf("durable store not opened; call store.Open first")
	}
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("account requires id and username")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	b := db.NewBatch()
	defer b.Close()

	// drop the old username index entry if the username changed
	if prev, perr := GetAccount(a.ID); perr == nil && !strings.EqualFold(prev.Username, a.Username) {
		if err := b.Delete(usernameKey(prev.Username), nil); err != nil {
			return err
		}
	}
	if err := b.Set(accountKey(a.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(usernameKey(a.Username), []byte(a.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_account_failed", "id", a.ID, "error", err)
		return err
	}
	logger.Debug("account_saved", "id", a.ID, "username", a.Username)
	return nil
}

// GetAccount reads one account row. Returns ErrNotFound for unknown ids.
func GetAccount(id string) (models.Account, error) {
	var a models.Account
	if db == nil {
		return a, fmt.Errorf("durable store not opened; call store.Open first")
	}
	v, closer, err := db.Get(accountKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return a, ErrNotFound
		}
		return a, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &a); err != nil {
		return a, fmt.Errorf("corrupt account row %s: %w", id, err)
	}
	return a, nil
}

// LookupUsername resolves a username (case-insensitive) to an account id
// through the index. Returns ErrNotFound when the name is unclaimed.
func LookupUsername(name string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("durable store not opened; call store.Open first")
	}
	v, closer, err := db.Get(usernameKey(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// ListAccounts returns every account row. Used by the cache bulk load at
// startup and by the reconciler.
func ListAccounts() ([]models.Account, error) {
	if db == nil {
		return nil, fmt.Errorf("durable store not opened; call store.Open first")
	}
	prefix := []byte("account:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Account
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			break
		}
		var a models.Account
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			return nil, fmt.Errorf("corrupt account row %s: %w", string(k), err)
		}
		out = append(out, a)
	}
	return out, iter.Error()
}

// SaveMessage appends a message to a conversation by inserting a new key
// with a sortable timestamp prefix. Messages are ordered by insertion time.
func SaveMessage(convID string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("durable store not opened; call store.Open first")
	}
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, s)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "conversation", convID, "key", key, "error", err)
		return err
	}
	logger.Debug("message_saved", "conversation", convID, "key", key, "msg_id", msg.ID)
	return nil
}

// ListMessages returns messages for a conversation in insertion order. A
// positive limit caps the result from the end (most recent).
func ListMessages(convID string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("durable store not opened; call store.Open first")
	}
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("corrupt message row %s: %w", string(k), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// AccountReader adapts the package-global store to the read-only interface
// the user cache consumes.
type AccountReader struct{}

func (AccountReader) ReadAccount(id string) (models.Account, error) { return GetAccount(id) }
func (AccountReader) ListAccounts() ([]models.Account, error)       { return ListAccounts() }
