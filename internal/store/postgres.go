package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Supply snapshots ---

// SupplyRecord is one persisted supply reading. Wei amounts are decimal strings.
type SupplyRecord struct {
	BlockNumber          int64     `json:"block_number"`
	BeaconSlot           int64     `json:"beacon_slot"`
	ExecutionBalancesWei string    `json:"execution_balances_wei"`
	BeaconBalancesWei    string    `json:"beacon_balances_wei"`
	BeaconDepositsWei    string    `json:"beacon_deposits_wei"`
	EthSupply            float64   `json:"eth_supply"`
	FetchedAt            time.Time `json:"fetched_at"`
}

// InsertSupplySnapshot stores a reading; a block already recorded is left untouched.
func (s *Store) InsertSupplySnapshot(ctx context.Context, r SupplyRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO supply_snapshots
			(block_number, beacon_slot, execution_balances_wei, beacon_balances_wei, beacon_deposits_wei, eth_supply, fetched_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (block_number) DO NOTHING`,
		r.BlockNumber, r.BeaconSlot, r.ExecutionBalancesWei, r.BeaconBalancesWei, r.BeaconDepositsWei, r.EthSupply, r.FetchedAt)
	return err
}

// ListSupplySnapshots returns the most recent readings, newest first.
func (s *Store) ListSupplySnapshots(ctx context.Context, limit int) ([]SupplyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, beacon_slot, execution_balances_wei::text, beacon_balances_wei::text,
		       beacon_deposits_wei::text, eth_supply, fetched_at
		FROM supply_snapshots
		ORDER BY block_number DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SupplyRecord
	for rows.Next() {
		var r SupplyRecord
		if err := rows.Scan(&r.BlockNumber, &r.BeaconSlot, &r.ExecutionBalancesWei, &r.BeaconBalancesWei,
			&r.BeaconDepositsWei, &r.EthSupply, &r.FetchedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// NearestSupplySnapshot returns the reading fetched closest to at, or nil
// when none lies within tolerance of it.
func (s *Store) NearestSupplySnapshot(ctx context.Context, at time.Time, tolerance time.Duration) (*SupplyRecord, error) {
	var r SupplyRecord
	err := s.pool.QueryRow(ctx, `
		SELECT block_number, beacon_slot, execution_balances_wei::text, beacon_balances_wei::text,
		       beacon_deposits_wei::text, eth_supply, fetched_at
		FROM supply_snapshots
		WHERE fetched_at BETWEEN $1 AND $2
		ORDER BY abs(extract(epoch FROM fetched_at - $3::timestamptz))
		LIMIT 1`, at.Add(-tolerance), at.Add(tolerance), at).
		Scan(&r.BlockNumber, &r.BeaconSlot, &r.ExecutionBalancesWei, &r.BeaconBalancesWei,
			&r.BeaconDepositsWei, &r.EthSupply, &r.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Events ---

type Event struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, category, enabled, created_at FROM events WHERE enabled = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Category, &e.Enabled, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Telegram Users ---

type TelegramUser struct {
	ID         int64     `json:"id"`
	TgChatID   int64     `json:"tg_chat_id"`
	TgUsername string    `json:"tg_username"`
	Linked     bool      `json:"linked"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) UpsertTelegramUser(ctx context.Context, chatID int64, username, linkCode string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO telegram_users (tg_chat_id, tg_username, link_code, link_code_expires_at, linked)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (tg_chat_id) DO UPDATE
			SET link_code = $3, link_code_expires_at = $4, tg_username = $2`,
		chatID, username, linkCode, expiresAt)
	return err
}

func (s *Store) LinkByCode(ctx context.Context, code string) (*TelegramUser, error) {
	var u TelegramUser
	err := s.pool.QueryRow(ctx, `
		UPDATE telegram_users SET linked = true, link_code = NULL, link_code_expires_at = NULL
		WHERE link_code = $1 AND link_code_expires_at > now()
		RETURNING id, tg_chat_id, tg_username, linked, created_at`, code).
		Scan(&u.ID, &u.TgChatID, &u.TgUsername, &u.Linked, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UnlinkTelegram(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM subscriptions WHERE tg_user_id = (SELECT id FROM telegram_users WHERE tg_chat_id = $1)`, chatID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE telegram_users SET linked = false WHERE tg_chat_id = $1`, chatID)
	return err
}

func (s *Store) GetTelegramUser(ctx context.Context, chatID int64) (*TelegramUser, error) {
	var u TelegramUser
	err := s.pool.QueryRow(ctx, `
		SELECT id, tg_chat_id, tg_username, linked, created_at
		FROM telegram_users WHERE tg_chat_id = $1`, chatID).
		Scan(&u.ID, &u.TgChatID, &u.TgUsername, &u.Linked, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- Subscriptions ---

type Subscription struct {
	ID         int64     `json:"id"`
	TgUserID   int64     `json:"tg_user_id"`
	EventID    int       `json:"event_id"`
	ReportHour int       `json:"report_hour"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) ListSubscriptions(ctx context.Context, tgChatID int64) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.tg_user_id, s.event_id, s.report_hour, s.created_at
		FROM subscriptions s
		JOIN telegram_users u ON u.id = s.tg_user_id
		WHERE u.tg_chat_id = $1
		ORDER BY s.id`, tgChatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.TgUserID, &sub.EventID, &sub.ReportHour, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Subscribe creates or updates the subscription of a linked user to an event.
func (s *Store) Subscribe(ctx context.Context, tgChatID int64, eventID, reportHour int) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (tg_user_id, event_id, report_hour)
		SELECT u.id, $2, $3 FROM telegram_users u WHERE u.tg_chat_id = $1 AND u.linked = true
		ON CONFLICT (tg_user_id, event_id) DO UPDATE SET report_hour = $3
		RETURNING id, tg_user_id, event_id, report_hour, created_at`,
		tgChatID, eventID, reportHour).
		Scan(&sub.ID, &sub.TgUserID, &sub.EventID, &sub.ReportHour, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) Unsubscribe(ctx context.Context, subID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, subID)
	return err
}

// GetDailyReportSubscribers returns linked chats subscribed to eventName for the given UTC hour.
func (s *Store) GetDailyReportSubscribers(ctx context.Context, eventName string, hour int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.tg_chat_id
		FROM subscriptions s
		JOIN telegram_users u ON u.id = s.tg_user_id
		JOIN events e ON e.id = s.event_id
		WHERE e.name = $1 AND u.linked = true AND s.report_hour = $2`, eventName, hour)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountSubscriptions returns the number of active subscriptions for an event.
func (s *Store) CountSubscriptions(ctx context.Context, eventName string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM subscriptions s
		JOIN events e ON e.id = s.event_id
		WHERE e.name = $1`, eventName).Scan(&count)
	return count, err
}

// CountLinkedUsers returns the number of linked Telegram users.
func (s *Store) CountLinkedUsers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM telegram_users WHERE linked = true`).Scan(&count)
	return count, err
}
