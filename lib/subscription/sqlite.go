// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/sqlitepool"
	"github.com/bureau-foundation/nodewatch/messaging"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	network    TEXT    NOT NULL,
	node_id    INTEGER NOT NULL,
	observer   TEXT    NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch()),
	PRIMARY KEY (network, node_id, observer)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS subscriptions_by_observer
	ON subscriptions (observer, network, node_id);
`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and
// ensures the schema exists.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := 0
	if path == ":memory:" {
		poolSize = 1
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	return &SQLiteStore{pool: pool, logger: logger}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) SubscribedNodes(ctx context.Context, network string) ([]node.ID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	defer s.pool.Put(conn)

	var ids []node.ID
	err = sqlitex.Execute(conn,
		`SELECT DISTINCT node_id FROM subscriptions WHERE network = ? ORDER BY node_id`,
		&sqlitex.ExecOptions{
			Args: []any{network},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, node.ID(stmt.ColumnInt64(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("subscription: listing nodes of %s: %w", network, err)
	}
	return ids, nil
}

func (s *SQLiteStore) Observers(ctx context.Context, network string, id node.ID) ([]messaging.ObserverID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	defer s.pool.Put(conn)

	observers := []messaging.ObserverID{}
	err = sqlitex.Execute(conn,
		`SELECT observer FROM subscriptions WHERE network = ? AND node_id = ? ORDER BY observer`,
		&sqlitex.ExecOptions{
			Args: []any{network, int64(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				observers = append(observers, messaging.ObserverID(stmt.ColumnText(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("subscription: observers of %s/%d: %w", network, id, err)
	}
	return observers, nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, sub Subscription) (bool, error) {
	if err := sub.Validate(); err != nil {
		return false, err
	}
	changed, err := s.write(ctx,
		`INSERT OR IGNORE INTO subscriptions (network, node_id, observer) VALUES (?, ?, ?)`,
		sub.Network, int64(sub.NodeID), string(sub.Observer))
	if err != nil {
		return false, fmt.Errorf("subscription: subscribing %s to %s/%d: %w", sub.Observer, sub.Network, sub.NodeID, err)
	}
	if changed > 0 {
		s.logger.Info("subscription added",
			"network", sub.Network, "node_id", sub.NodeID, "observer", sub.Observer)
	}
	return changed > 0, nil
}

func (s *SQLiteStore) Unsubscribe(ctx context.Context, sub Subscription) (bool, error) {
	changed, err := s.write(ctx,
		`DELETE FROM subscriptions WHERE network = ? AND node_id = ? AND observer = ?`,
		sub.Network, int64(sub.NodeID), string(sub.Observer))
	if err != nil {
		return false, fmt.Errorf("subscription: unsubscribing %s from %s/%d: %w", sub.Observer, sub.Network, sub.NodeID, err)
	}
	if changed > 0 {
		s.logger.Info("subscription removed",
			"network", sub.Network, "node_id", sub.NodeID, "observer", sub.Observer)
	}
	return changed > 0, nil
}

func (s *SQLiteStore) UnsubscribeAll(ctx context.Context, network string, observer messaging.ObserverID) (int, error) {
	changed, err := s.write(ctx,
		`DELETE FROM subscriptions WHERE network = ? AND observer = ?`,
		network, string(observer))
	if err != nil {
		return 0, fmt.Errorf("subscription: unsubscribing %s from %s: %w", observer, network, err)
	}
	s.logger.Info("subscriptions cleared", "network", network, "observer", observer, "removed", changed)
	return changed, nil
}

func (s *SQLiteStore) Subscriptions(ctx context.Context, observer messaging.ObserverID) ([]Subscription, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	defer s.pool.Put(conn)

	var subs []Subscription
	err = sqlitex.Execute(conn,
		`SELECT network, node_id FROM subscriptions WHERE observer = ? ORDER BY network, node_id`,
		&sqlitex.ExecOptions{
			Args: []any{string(observer)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				subs = append(subs, Subscription{
					Network:  stmt.ColumnText(0),
					NodeID:   node.ID(stmt.ColumnInt64(1)),
					Observer: observer,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("subscription: listing %s: %w", observer, err)
	}
	return subs, nil
}

// write runs one statement in an immediate transaction and returns the
// number of rows it changed.
func (s *SQLiteStore) write(ctx context.Context, query string, args ...any) (changed int, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, err
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return 0, err
	}
	return conn.Changes(), nil
}
