// Package auxstore wraps the auxiliary key-value database: per-account
// block/mute/keyword sets, server settings and ephemeral counters. It is a
// separate pebble instance from the durable account store; the user cache
// reads both on every refresh.
package auxstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"shipboard/pkg/logger"
	"shipboard/pkg/models"
)

var db *pebble.DB

// Open opens (or creates) the auxiliary database at the given path.
func Open(path string) error {
	var err error
	logger.Info("opening_aux_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("aux_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("aux_opened", "path", path)
	return nil
}

// Close closes the auxiliary DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("aux_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func getList(key string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("aux store not opened; call auxstore.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("corrupt aux list %s: %w", key, err)
	}
	return out, nil
}

func setList(key string, vals []string) error {
	if db == nil {
		return fmt.Errorf("aux store not opened; call auxstore.Open first")
	}
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), b, pebble.Sync)
}

func addToList(key, val string) error {
	vals, err := getList(key)
	if err != nil {
		return err
	}
	for _, v := range vals {
		if v == val {
			return nil
		}
	}
	return setList(key, append(vals, val))
}

func removeFromList(key, val string) error {
	vals, err := getList(key)
	if err != nil {
		return err
	}
	out := vals[:0]
	for _, v := range vals {
		if v != val {
			out = append(out, v)
		}
	}
	return setList(key, out)
}

func blocksKey(id string) string     { return "blocks:" + id }
func mutesKey(id string) string      { return "mutes:" + id }
func muteWordsKey(id string) string  { return "mutewords:" + id }
func alertWordsKey(id string) string { return "alertwords:" + id }

// InitAccount writes empty sets for a freshly created account so refreshes
// never distinguish "no entry" from "empty".
func InitAccount(id string) error {
	for _, k := range []string{blocksKey(id), mutesKey(id), muteWordsKey(id), alertWordsKey(id)} {
		if err := setList(k, nil); err != nil {
			return err
		}
	}
	return nil
}

// AddBlock records that blocker blocks blocked. Blocks are symmetric for
// content filtering, so both directions are written.
func AddBlock(blocker, blocked string) error {
	if err := addToList(blocksKey(blocker), blocked); err != nil {
		return err
	}
	return addToList(blocksKey(blocked), blocker)
}

// RemoveBlock removes a block in both directions.
func RemoveBlock(blocker, blocked string) error {
	if err := removeFromList(blocksKey(blocker), blocked); err != nil {
		return err
	}
	return removeFromList(blocksKey(blocked), blocker)
}

// AddMute records that muter mutes muted. Mutes are one-directional.
func AddMute(muter, muted string) error {
	return addToList(mutesKey(muter), muted)
}

// RemoveMute removes a mute.
func RemoveMute(muter, muted string) error {
	return removeFromList(mutesKey(muter), muted)
}

// AddMuteWord adds a keyword whose presence mutes content for the account.
func AddMuteWord(id, word string) error {
	return addToList(muteWordsKey(id), word)
}

// RemoveMuteWord removes a mute keyword.
func RemoveMuteWord(id, word string) error {
	return removeFromList(muteWordsKey(id), word)
}

// AddAlertWord adds a keyword that triggers notifications for the account.
func AddAlertWord(id, word string) error {
	return addToList(alertWordsKey(id), word)
}

// RemoveAlertWord removes an alert keyword.
func RemoveAlertWord(id, word string) error {
	return removeFromList(alertWordsKey(id), word)
}

// DerivedSets reads every per-account set in one call. Missing keys come
// back as empty sets; refreshes treat that the same as an initialized
// account with no entries.
func DerivedSets(id string) (models.DerivedSets, error) {
	var ds models.DerivedSets
	var err error
	if ds.BlockedIDs, err = getList(blocksKey(id)); err != nil {
		return ds, err
	}
	if ds.MutedIDs, err = getList(mutesKey(id)); err != nil {
		return ds, err
	}
	if ds.MuteWords, err = getList(muteWordsKey(id)); err != nil {
		return ds, err
	}
	if ds.AlertWords, err = getList(alertWordsKey(id)); err != nil {
		return ds, err
	}
	return ds, nil
}

// GetSetting returns a named server setting, or "" when unset.
func GetSetting(name string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("aux store not opened; call auxstore.Open first")
	}
	v, closer, err := db.Get([]byte("setting:" + name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	defer closer.Close()
	out := string(v)
	return out, nil
}

// SetSetting stores a named server setting.
func SetSetting(name, value string) error {
	if db == nil {
		return fmt.Errorf("aux store not opened; call auxstore.Open first")
	}
	return db.Set([]byte("setting:"+name), []byte(value), pebble.Sync)
}

// IncrCounter increments a named ephemeral counter and returns the new
// value. Counters are best-effort; writes are not synced.
func IncrCounter(name string) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("aux store not opened; call auxstore.Open first")
	}
	key := []byte("counter:" + name)
	var cur int64
	if v, closer, err := db.Get(key); err == nil {
		cur, _ = strconv.ParseInt(string(v), 10, 64)
		closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return 0, err
	}
	cur++
	if err := db.Set(key, []byte(strconv.FormatInt(cur, 10)), pebble.NoSync); err != nil {
		return 0, err
	}
	return cur, nil
}

// Reader adapts the package-global store to the read-only interface the
// user cache consumes.
type Reader struct{}

func (Reader) DerivedSets(id string) (models.DerivedSets, error) { return DerivedSets(id) }
