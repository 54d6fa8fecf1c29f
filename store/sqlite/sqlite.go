/*
Package sqlite provides a SQLite-backed implementation of the loyalty
storage interfaces.

PURPOSE:
  Implements loyalty.Store and loyalty.TxStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger table is append-only:
  - No UPDATE statements on loyalty_events
  - No DELETE statements on loyalty_events

OPTIMISTIC CONCURRENCY:
  Profile updates are version-checked (UPDATE ... WHERE version = ?).
  A stale write affects zero rows and surfaces as
  loyalty.ErrConcurrentModification.

KEY TABLES:
  loyalty_profiles:  One mutable aggregate per customer
  loyalty_events:    Immutable ledger of loyalty occurrences
  loyalty_rewards:   Unlock/expiry/redeem reward lifecycle

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := loyalty.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - loyalty/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/loyalty"
)

// Store implements loyalty.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ loyalty.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The engine serializes writes per customer; a single connection
	// keeps SQLite's single-writer rule out of the error path.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Profiles (one mutable aggregate per customer)
	CREATE TABLE IF NOT EXISTS loyalty_profiles (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL UNIQUE,
		store_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_points INTEGER NOT NULL DEFAULT 0,
		purchase_count INTEGER NOT NULL DEFAULT 0,
		feedback_count INTEGER NOT NULL DEFAULT 0,
		comeback_count INTEGER NOT NULL DEFAULT 0,
		days_since_first INTEGER NOT NULL DEFAULT 0,
		consistency_score REAL NOT NULL DEFAULT 0,
		engagement_score REAL NOT NULL DEFAULT 0,
		milestone_progress REAL NOT NULL DEFAULT 0,
		last_purchase_at TEXT,
		status_since TEXT NOT NULL,
		recognition_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_store
		ON loyalty_profiles(store_id);
	CREATE INDEX IF NOT EXISTS idx_profiles_store_progress
		ON loyalty_profiles(store_id, milestone_progress);
	CREATE INDEX IF NOT EXISTS idx_profiles_store_last_purchase
		ON loyalty_profiles(store_id, last_purchase_at);

	-- Events (append-only ledger; no UPDATE or DELETE, ever)
	CREATE TABLE IF NOT EXISTS loyalty_events (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_source TEXT,
		metadata_json TEXT,
		description TEXT,
		points INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_profile_created
		ON loyalty_events(profile_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_store_created
		ON loyalty_events(store_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_store_type_created
		ON loyalty_events(store_id, event_type, created_at);

	-- Rewards (unlock/expiry/redeem lifecycle)
	CREATE TABLE IF NOT EXISTS loyalty_rewards (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		reward_type TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		credit_amount TEXT,
		min_status TEXT NOT NULL,
		unlocked_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		redeemed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_profile_created
		ON loyalty_rewards(profile_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_rewards_store_status_expires
		ON loyalty_rewards(store_id, status, expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so row-level helpers
// work inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PROFILES
// =============================================================================

const profileColumns = `id, patient_id, store_id, status, total_points, purchase_count,
	feedback_count, comeback_count, days_since_first, consistency_score,
	engagement_score, milestone_progress, last_purchase_at, status_since,
	recognition_message, created_at, updated_at, version`

func (s *Store) GetProfileByPatient(ctx context.Context, patientID loyalty.PatientID) (*loyalty.Profile, error) {
	return getProfileByPatient(ctx, s.db, patientID)
}

func getProfileByPatient(ctx context.Context, db dbtx, patientID loyalty.PatientID) (*loyalty.Profile, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM loyalty_profiles WHERE patient_id = ?`, patientID)
	return scanProfileRow(row)
}

func (s *Store) GetProfile(ctx context.Context, id loyalty.ProfileID) (*loyalty.Profile, error) {
	return getProfile(ctx, s.db, id)
}

func getProfile(ctx context.Context, db dbtx, id loyalty.ProfileID) (*loyalty.Profile, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM loyalty_profiles WHERE id = ?`, id)
	return scanProfileRow(row)
}

func (s *Store) CreateProfile(ctx context.Context, p *loyalty.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createProfile(ctx, s.db, p)
}

func createProfile(ctx context.Context, db dbtx, p *loyalty.Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO loyalty_profiles
		(id, patient_id, store_id, status, total_points, purchase_count,
		 feedback_count, comeback_count, days_since_first, consistency_score,
		 engagement_score, milestone_progress, last_purchase_at, status_since,
		 recognition_message, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PatientID, p.StoreID, p.Status, p.TotalPoints, p.PurchaseCount,
		p.FeedbackCount, p.ComebackCount, p.DaysSinceFirst, p.ConsistencyScore,
		p.EngagementScore, p.MilestoneProgress, nullTime(p.LastPurchaseAt),
		formatTime(p.StatusSince), p.RecognitionMessage,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p *loyalty.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateProfile(ctx, s.db, p)
}

// updateProfile is a compare-and-swap on the version column. Every
// column except the identity triple (id, patient_id, store_id) is
// written, matching the memory store's full-struct overwrite.
func updateProfile(ctx context.Context, db dbtx, p *loyalty.Profile) error {
	res, err := db.ExecContext(ctx, `
		UPDATE loyalty_profiles SET
			status = ?, total_points = ?, purchase_count = ?, feedback_count = ?,
			comeback_count = ?, days_since_first = ?, consistency_score = ?,
			engagement_score = ?, milestone_progress = ?, last_purchase_at = ?,
			status_since = ?, recognition_message = ?, created_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		p.Status, p.TotalPoints, p.PurchaseCount, p.FeedbackCount,
		p.ComebackCount, p.DaysSinceFirst, p.ConsistencyScore,
		p.EngagementScore, p.MilestoneProgress, nullTime(p.LastPurchaseAt),
		formatTime(p.StatusSince), p.RecognitionMessage, formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the profile vanished or the version is stale.
		if _, err := getProfile(ctx, db, p.ID); err != nil {
			return err
		}
		return loyalty.ErrConcurrentModification
	}
	p.Version++
	return nil
}

func (s *Store) ListProfilesByStore(ctx context.Context, storeID loyalty.StoreID, filter loyalty.ProfileFilter) ([]*loyalty.Profile, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + profileColumns + ` FROM loyalty_profiles WHERE store_id = ?`
	args := []any{storeID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	return queryProfiles(ctx, s.db, query, args...)
}

func queryProfiles(ctx context.Context, db dbtx, query string, args ...any) ([]*loyalty.Profile, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*loyalty.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfileRow(row *sql.Row) (*loyalty.Profile, error) {
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, loyalty.ErrProfileNotFound
	}
	return p, err
}

func scanProfile(row rowScanner) (*loyalty.Profile, error) {
	var (
		p              loyalty.Profile
		lastPurchaseAt sql.NullString
		statusSince    string
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(
		&p.ID, &p.PatientID, &p.StoreID, &p.Status, &p.TotalPoints,
		&p.PurchaseCount, &p.FeedbackCount, &p.ComebackCount,
		&p.DaysSinceFirst, &p.ConsistencyScore, &p.EngagementScore,
		&p.MilestoneProgress, &lastPurchaseAt, &statusSince,
		&p.RecognitionMessage, &createdAt, &updatedAt, &p.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.StatusSince = parseTime(statusSince)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	if lastPurchaseAt.Valid && lastPurchaseAt.String != "" {
		t := parseTime(lastPurchaseAt.String)
		p.LastPurchaseAt = &t
	}
	return &p, nil
}

// =============================================================================
// EVENTS (append-only)
// =============================================================================

const eventColumns = `id, profile_id, store_id, event_type, event_source,
	metadata_json, description, points, created_at`

func (s *Store) AppendEvent(ctx context.Context, e *loyalty.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, e)
}

func appendEvent(ctx context.Context, db dbtx, e *loyalty.Event) error {
	metadataJSON, _ := json.Marshal(e.Metadata)

	_, err := db.ExecContext(ctx, `
		INSERT INTO loyalty_events
		(id, profile_id, store_id, event_type, event_source, metadata_json,
		 description, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProfileID, e.StoreID, e.Type, nullString(e.EventSource),
		string(metadataJSON), e.Description, e.Points, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) ListEventsByProfile(ctx context.Context, profileID loyalty.ProfileID, limit int) ([]loyalty.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryEvents(ctx, s.db, `
		SELECT `+eventColumns+` FROM loyalty_events
		WHERE profile_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, profileID, limit)
}

func (s *Store) ListEventsByStore(ctx context.Context, storeID loyalty.StoreID, filter loyalty.EventFilter) ([]loyalty.Event, error) {
	query, args := buildStoreEventsQuery(storeID, filter)
	return queryEvents(ctx, s.db, query, args...)
}

func buildStoreEventsQuery(storeID loyalty.StoreID, filter loyalty.EventFilter) (string, []any) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + eventColumns + ` FROM loyalty_events WHERE store_id = ?`)
	args := []any{storeID}
	if filter.Type != nil {
		sb.WriteString(` AND event_type = ?`)
		args = append(args, *filter.Type)
	}
	if filter.From != nil {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		sb.WriteString(` AND created_at <= ?`)
		args = append(args, formatTime(*filter.To))
	}
	sb.WriteString(` ORDER BY created_at DESC, rowid DESC LIMIT ?`)
	args = append(args, limit)
	return sb.String(), args
}

func (s *Store) CountEventsByStoreSince(ctx context.Context, storeID loyalty.StoreID, since time.Time, types ...loyalty.EventType) (int, error) {
	query := `SELECT COUNT(*) FROM loyalty_events WHERE store_id = ? AND created_at >= ?`
	args := []any{storeID, formatTime(since)}
	if len(types) > 0 {
		query += ` AND event_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func queryEvents(ctx context.Context, db dbtx, query string, args ...any) ([]loyalty.Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []loyalty.Event
	for rows.Next() {
		var (
			e            loyalty.Event
			eventSource  sql.NullString
			metadataJSON sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.StoreID, &e.Type,
			&eventSource, &metadataJSON, &e.Description, &e.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventSource = eventSource.String
		e.CreatedAt = parseTime(createdAt)
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = `id, profile_id, store_id, reward_type, status, title,
	description, credit_amount, min_status, unlocked_at, expires_at,
	redeemed_at, created_at`

func (s *Store) CreateReward(ctx context.Context, r *loyalty.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createReward(ctx, s.db, r)
}

func createReward(ctx context.Context, db dbtx, r *loyalty.Reward) error {
	var creditAmount any
	if r.CreditAmount != nil {
		creditAmount = r.CreditAmount.String()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO loyalty_rewards
		(id, profile_id, store_id, reward_type, status, title, description,
		 credit_amount, min_status, unlocked_at, expires_at, redeemed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProfileID, r.StoreID, r.Type, r.Status, r.Title, r.Description,
		creditAmount, r.MinStatus, formatTime(r.UnlockedAt),
		formatTime(r.ExpiresAt), nullTime(r.RedeemedAt), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func (s *Store) GetReward(ctx context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	return getReward(ctx, s.db, id)
}

func getReward(ctx context.Context, db dbtx, id loyalty.RewardID) (*loyalty.Reward, error) {
	rewards, err := queryRewards(ctx, db,
		`SELECT `+rewardColumns+` FROM loyalty_rewards WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rewards) == 0 {
		return nil, loyalty.ErrRewardNotFound
	}
	return &rewards[0], nil
}

func (s *Store) UpdateReward(ctx context.Context, r *loyalty.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReward(ctx, s.db, r)
}

// updateReward writes every column except the identity triple
// (id, profile_id, store_id), matching the memory store.
func updateReward(ctx context.Context, db dbtx, r *loyalty.Reward) error {
	var creditAmount any
	if r.CreditAmount != nil {
		creditAmount = r.CreditAmount.String()
	}

	res, err := db.ExecContext(ctx, `
		UPDATE loyalty_rewards SET
			reward_type = ?, status = ?, title = ?, description = ?,
			credit_amount = ?, min_status = ?, unlocked_at = ?, expires_at = ?,
			redeemed_at = ?, created_at = ?
		WHERE id = ?`,
		r.Type, r.Status, r.Title, r.Description,
		creditAmount, r.MinStatus, formatTime(r.UnlockedAt), formatTime(r.ExpiresAt),
		nullTime(r.RedeemedAt), formatTime(r.CreatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return loyalty.ErrRewardNotFound
	}
	return nil
}

func (s *Store) ListRewardsByProfile(ctx context.Context, profileID loyalty.ProfileID, status *loyalty.RewardStatus) ([]loyalty.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM loyalty_rewards WHERE profile_id = ?`
	args := []any{profileID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	return queryRewards(ctx, s.db, query, args...)
}

func (s *Store) ListExpiredRewards(ctx context.Context, storeID loyalty.StoreID, asOf time.Time) ([]loyalty.Reward, error) {
	return queryRewards(ctx, s.db, `
		SELECT `+rewardColumns+` FROM loyalty_rewards
		WHERE store_id = ? AND status = ? AND expires_at < ?
		ORDER BY expires_at ASC`,
		storeID, loyalty.RewardUnlocked, formatTime(asOf))
}

func queryRewards(ctx context.Context, db dbtx, query string, args ...any) ([]loyalty.Reward, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []loyalty.Reward
	for rows.Next() {
		var (
			r            loyalty.Reward
			description  sql.NullString
			creditAmount sql.NullString
			unlockedAt   string
			expiresAt    string
			redeemedAt   sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.StoreID, &r.Type, &r.Status,
			&r.Title, &description, &creditAmount, &r.MinStatus,
			&unlockedAt, &expiresAt, &redeemedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		r.Description = description.String
		if creditAmount.Valid {
			d, err := decimal.NewFromString(creditAmount.String)
			if err != nil {
				return nil, fmt.Errorf("invalid credit amount %q: %w", creditAmount.String, err)
			}
			r.CreditAmount = &d
		}
		r.UnlockedAt = parseTime(unlockedAt)
		r.ExpiresAt = parseTime(expiresAt)
		if redeemedAt.Valid && redeemedAt.String != "" {
			t := parseTime(redeemedAt.String)
			r.RedeemedAt = &t
		}
		r.CreatedAt = parseTime(createdAt)
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// =============================================================================
// AGGREGATES
// =============================================================================

func (s *Store) CountProfilesByStatus(ctx context.Context, storeID loyalty.StoreID) (map[loyalty.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? GROUP BY status`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[loyalty.Status]int)
	for rows.Next() {
		var status loyalty.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) CountProfilesInactiveSince(ctx context.Context, storeID loyalty.StoreID, before time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? AND last_purchase_at IS NOT NULL AND last_purchase_at < ?`,
		storeID, formatTime(before)).Scan(&count)
	return count, err
}

func (s *Store) CountProfilesCreatedSince(ctx context.Context, storeID loyalty.StoreID, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? AND created_at >= ?`,
		storeID, formatTime(since)).Scan(&count)
	return count, err
}

func (s *Store) ListNearMilestone(ctx context.Context, storeID loyalty.StoreID, minProgress float64) ([]*loyalty.Profile, error) {
	return queryProfiles(ctx, s.db, `
		SELECT `+profileColumns+` FROM loyalty_profiles
		WHERE store_id = ? AND milestone_progress >= ? AND milestone_progress < 100
		ORDER BY milestone_progress DESC`,
		storeID, minProgress)
}

// =============================================================================
// TRANSACTIONAL STORE (loyalty.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks. All
// operations run against the open *sql.Tx so reads see uncommitted
// writes from earlier in the sequence.
type txStore struct {
	tx *sql.Tx
}

var _ loyalty.Store = (*txStore)(nil)

func (ts *txStore) GetProfileByPatient(ctx context.Context, patientID loyalty.PatientID) (*loyalty.Profile, error) {
	return getProfileByPatient(ctx, ts.tx, patientID)
}

func (ts *txStore) GetProfile(ctx context.Context, id loyalty.ProfileID) (*loyalty.Profile, error) {
	return getProfile(ctx, ts.tx, id)
}

func (ts *txStore) CreateProfile(ctx context.Context, p *loyalty.Profile) error {
	return createProfile(ctx, ts.tx, p)
}

func (ts *txStore) UpdateProfile(ctx context.Context, p *loyalty.Profile) error {
	return updateProfile(ctx, ts.tx, p)
}

func (ts *txStore) ListProfilesByStore(ctx context.Context, storeID loyalty.StoreID, filter loyalty.ProfileFilter) ([]*loyalty.Profile, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + profileColumns + ` FROM loyalty_profiles WHERE store_id = ?`
	args := []any{storeID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)
	return queryProfiles(ctx, ts.tx, query, args...)
}

func (ts *txStore) AppendEvent(ctx context.Context, e *loyalty.Event) error {
	return appendEvent(ctx, ts.tx, e)
}

func (ts *txStore) ListEventsByProfile(ctx context.Context, profileID loyalty.ProfileID, limit int) ([]loyalty.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryEvents(ctx, ts.tx, `
		SELECT `+eventColumns+` FROM loyalty_events
		WHERE profile_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, profileID, limit)
}

func (ts *txStore) ListEventsByStore(ctx context.Context, storeID loyalty.StoreID, filter loyalty.EventFilter) ([]loyalty.Event, error) {
	query, args := buildStoreEventsQuery(storeID, filter)
	return queryEvents(ctx, ts.tx, query, args...)
}

func (ts *txStore) CountEventsByStoreSince(ctx context.Context, storeID loyalty.StoreID, since time.Time, types ...loyalty.EventType) (int, error) {
	query := `SELECT COUNT(*) FROM loyalty_events WHERE store_id = ? AND created_at >= ?`
	args := []any{storeID, formatTime(since)}
	if len(types) > 0 {
		query += ` AND event_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	var count int
	err := ts.tx.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (ts *txStore) CreateReward(ctx context.Context, r *loyalty.Reward) error {
	return createReward(ctx, ts.tx, r)
}

func (ts *txStore) GetReward(ctx context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	return getReward(ctx, ts.tx, id)
}

func (ts *txStore) UpdateReward(ctx context.Context, r *loyalty.Reward) error {
	return updateReward(ctx, ts.tx, r)
}

func (ts *txStore) ListRewardsByProfile(ctx context.Context, profileID loyalty.ProfileID, status *loyalty.RewardStatus) ([]loyalty.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM loyalty_rewards WHERE profile_id = ?`
	args := []any{profileID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	return queryRewards(ctx, ts.tx, query, args...)
}

func (ts *txStore) ListExpiredRewards(ctx context.Context, storeID loyalty.StoreID, asOf time.Time) ([]loyalty.Reward, error) {
	return queryRewards(ctx, ts.tx, `
		SELECT `+rewardColumns+` FROM loyalty_rewards
		WHERE store_id = ? AND status = ? AND expires_at < ?
		ORDER BY expires_at ASC`,
		storeID, loyalty.RewardUnlocked, formatTime(asOf))
}

func (ts *txStore) CountProfilesByStatus(ctx context.Context, storeID loyalty.StoreID) (map[loyalty.Status]int, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? GROUP BY status`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[loyalty.Status]int)
	for rows.Next() {
		var status loyalty.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (ts *txStore) CountProfilesInactiveSince(ctx context.Context, storeID loyalty.StoreID, before time.Time) (int, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? AND last_purchase_at IS NOT NULL AND last_purchase_at < ?`,
		storeID, formatTime(before)).Scan(&count)
	return count, err
}

func (ts *txStore) CountProfilesCreatedSince(ctx context.Context, storeID loyalty.StoreID, since time.Time) (int, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loyalty_profiles
		WHERE store_id = ? AND created_at >= ?`,
		storeID, formatTime(since)).Scan(&count)
	return count, err
}

func (ts *txStore) ListNearMilestone(ctx context.Context, storeID loyalty.StoreID, minProgress float64) ([]*loyalty.Profile, error) {
	return queryProfiles(ctx, ts.tx, `
		SELECT `+profileColumns+` FROM loyalty_profiles
		WHERE store_id = ? AND milestone_progress >= ? AND milestone_progress < 100
		ORDER BY milestone_progress DESC`,
		storeID, minProgress)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset drops all loyalty data. Dev/demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"loyalty_events", "loyalty_rewards", "loyalty_profiles"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout keeps lexicographic and chronological order aligned for
// TEXT comparisons in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
