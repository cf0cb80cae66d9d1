package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS events (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'general',
    enabled BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS telegram_users (
    id BIGSERIAL PRIMARY KEY,
    tg_chat_id BIGINT NOT NULL UNIQUE,
    tg_username TEXT NOT NULL DEFAULT '',
    link_code TEXT UNIQUE,
    link_code_expires_at TIMESTAMPTZ,
    linked BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGSERIAL PRIMARY KEY,
    tg_user_id BIGINT NOT NULL REFERENCES telegram_users(id) ON DELETE CASCADE,
    event_id INT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    report_hour INT NOT NULL DEFAULT 0 CHECK (report_hour BETWEEN 0 AND 23),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(tg_user_id, event_id)
);

-- Wei amounts exceed BIGINT; NUMERIC(78,0) holds any uint256.
CREATE TABLE IF NOT EXISTS supply_snapshots (
    block_number BIGINT PRIMARY KEY,
    beacon_slot BIGINT NOT NULL,
    execution_balances_wei NUMERIC(78,0) NOT NULL,
    beacon_balances_wei NUMERIC(78,0) NOT NULL,
    beacon_deposits_wei NUMERIC(78,0) NOT NULL,
    eth_supply DOUBLE PRECISION NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS supply_snapshots_fetched_at_idx ON supply_snapshots (fetched_at DESC);

-- Seed default events (idempotent)
INSERT INTO events (name, description, category) VALUES
    ('supply_daily_report', 'Daily ETH supply report at your chosen hour (UTC)', 'supply')
ON CONFLICT (name) DO NOTHING;
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
