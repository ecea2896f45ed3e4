package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/goldenstream/internal/db"
	"github.com/myrjola/goldenstream/internal/errors"
	"github.com/myrjola/goldenstream/internal/models"
	"github.com/myrjola/goldenstream/internal/random"
)

// DefaultProfile is the namespace assigned to legacy records without one.
const DefaultProfile = "Default"

// Logical keys in the kv_store table.
const (
	historyKey        = "history"
	profilesKey       = "profiles"
	currentProfileKey = "current_profile"
)

const idSuffixLength = 6

// ErrItemNotFound is returned on lookups of unknown history item ids.
var ErrItemNotFound = errors.NewSentinel("history item not found")

// HistoryRepository keeps the generated reports, the profile list and the
// current-profile pointer. State is held in memory and mirrored to the
// kv_store table as whole JSON documents: read-all-on-init,
// write-all-on-mutation.
//
// All profiles share one ordered collection, newest first, capped at limit
// items with the oldest evicted beyond the cap.
type HistoryRepository struct {
	dbs    *db.DBs
	logger *slog.Logger
	limit  int

	mu       sync.Mutex
	items    []models.HistoryItem
	profiles []string
	current  string
}

// NewHistoryRepository loads persisted state from the database. Malformed
// persisted documents are discarded with a logged warning so that a corrupt
// store never blocks startup.
func NewHistoryRepository(
	ctx context.Context, dbs *db.DBs, logger *slog.Logger, limit int,
) (*HistoryRepository, error) {
	r := &HistoryRepository{
		dbs:      dbs,
		logger:   logger.With("source", "HistoryRepository"),
		limit:    limit,
		items:    nil,
		profiles: []string{DefaultProfile},
		current:  DefaultProfile,
	}

	var items []models.HistoryItem
	if ok := r.loadJSON(ctx, historyKey, &items); ok {
		r.items = normalizeItems(items)
		if len(r.items) > limit {
			r.items = r.items[:limit]
		}
	}

	var profiles []string
	if ok := r.loadJSON(ctx, profilesKey, &profiles); ok && len(profiles) > 0 {
		r.profiles = profiles
	}

	var current string
	if ok := r.loadJSON(ctx, currentProfileKey, &current); ok && current != "" {
		r.current = current
	}

	// Profiles referenced by loaded items or the pointer must exist in the list.
	for _, item := range r.items {
		r.registerProfileLocked(item.Profile)
	}
	r.registerProfileLocked(r.current)

	return r, nil
}

// NewHistoryItem stamps a fresh history item for a generated report. The id is
// derived from the generation timestamp with a random suffix to keep it unique
// within the same instant.
func NewHistoryItem(startupName, profile string, report models.ResearchReport) (models.HistoryItem, error) {
	now := time.Now().UTC()
	suffix, err := random.Letters(idSuffixLength)
	if err != nil {
		return models.HistoryItem{}, errors.Wrap(err, "generate id suffix")
	}
	return models.HistoryItem{
		ID:          fmt.Sprintf("%s-%s", now.Format(time.RFC3339Nano), suffix),
		StartupName: startupName,
		Date:        now.Format(time.RFC3339),
		Report:      report,
		Profile:     profile,
	}, nil
}

// Append inserts item newest-first and evicts the oldest entries beyond the
// retention cap. The just-appended item is never the one evicted.
func (r *HistoryRepository) Append(ctx context.Context, item models.HistoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append([]models.HistoryItem{item}, r.items...)
	if len(r.items) > r.limit {
		r.items = r.items[:r.limit]
	}
	return r.persistHistoryLocked(ctx)
}

// ReplaceByID substitutes the report of the item with the given id wholesale,
// preserving the item's id, position, startupName, date and profile. Unknown
// ids are a no-op.
func (r *HistoryRepository) ReplaceByID(ctx context.Context, id string, report models.ResearchReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Report = report
			return r.persistHistoryLocked(ctx)
		}
	}
	return nil
}

// GetByID looks up a single history item.
func (r *HistoryRepository) GetByID(id string) (models.HistoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range r.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.HistoryItem{}, ErrItemNotFound
}

// ListByProfile returns the items tagged with profile, preserving the overall
// newest-first order. A profile with no items yields an empty list.
func (r *HistoryRepository) ListByProfile(profile string) []models.HistoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]models.HistoryItem, 0, len(r.items))
	for _, item := range r.items {
		if item.Profile == profile {
			items = append(items, item)
		}
	}
	return items
}

// Profiles returns the registered profile names and the current pointer.
func (r *HistoryRepository) Profiles() ([]string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles := make([]string, len(r.profiles))
	copy(profiles, r.profiles)
	return profiles, r.current
}

// CurrentProfile returns the current-profile pointer.
func (r *HistoryRepository) CurrentProfile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SwitchProfile moves the current-profile pointer, registering the name first
// when it is unknown. Switching to an already-known profile is idempotent.
func (r *HistoryRepository) SwitchProfile(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registerProfileLocked(name)
	r.current = name
	return r.persistProfilesLocked(ctx)
}

// CreateProfile registers name (exact match, no-op when present) and switches
// the current profile to it.
func (r *HistoryRepository) CreateProfile(ctx context.Context, name string) error {
	return r.SwitchProfile(ctx, name)
}

func (r *HistoryRepository) registerProfileLocked(name string) {
	for _, p := range r.profiles {
		if p == name {
			return
		}
	}
	r.profiles = append(r.profiles, name)
}

// normalizeItems assigns the default profile to legacy records persisted
// before profiles existed.
func normalizeItems(items []models.HistoryItem) []models.HistoryItem {
	for i := range items {
		if items[i].Profile == "" {
			items[i].Profile = DefaultProfile
		}
	}
	return items
}

// loadJSON reads one logical key into v. It reports false and logs a warning
// for malformed documents, and false without logging for absent keys.
func (r *HistoryRepository) loadJSON(ctx context.Context, key string, v any) bool {
	var value string
	stmt := `SELECT value FROM kv_store WHERE key = ?`
	if err := r.dbs.ReadDB.GetContext(ctx, &value, stmt, key); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "could not read persisted state, starting empty",
				slog.String("key", key), errors.SlogError(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "discarding malformed persisted state",
			slog.String("key", key), errors.SlogError(err))
		return false
	}
	return true
}

func (r *HistoryRepository) persistHistoryLocked(ctx context.Context) error {
	return r.writeJSONLocked(ctx, historyKey, r.items)
}

func (r *HistoryRepository) persistProfilesLocked(ctx context.Context) error {
	if err := r.writeJSONLocked(ctx, profilesKey, r.profiles); err != nil {
		return err
	}
	return r.writeJSONLocked(ctx, currentProfileKey, r.current)
}

func (r *HistoryRepository) writeJSONLocked(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal persisted state", slog.String("key", key))
	}
	stmt := `INSERT INTO kv_store (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value,
		updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`
	if _, err = r.dbs.ReadWriteDB.ExecContext(ctx, stmt, key, string(value)); err != nil {
		return errors.Wrap(err, "write persisted state", slog.String("key", key))
	}
	return nil
}
