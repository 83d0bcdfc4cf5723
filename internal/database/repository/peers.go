package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/finestructure/historyview/internal/database"
)

// PeerRepo handles the known-peer address book.
type PeerRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewPeerRepo(db *sql.DB) *PeerRepo { return &PeerRepo{db: db, now: database.Now} }

// Remember records addr as reachable, refreshing its name and last_seen.
// An empty name keeps the previously stored one.
func (r *PeerRepo) Remember(ctx context.Context, addr, name string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("peer addr is required")
	}
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO known_peers(addr, name, first_seen, last_seen) VALUES (?, ?, ?, ?)
	ON CONFLICT(addr) DO UPDATE SET
		name=CASE WHEN excluded.name = '' THEN known_peers.name ELSE excluded.name END,
		last_seen=excluded.last_seen;
	`, addr, strings.TrimSpace(name), now, now)
	return err
}

func (r *PeerRepo) Get(ctx context.Context, addr string) (*KnownPeer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT addr, name, first_seen, last_seen, auto_dial FROM known_peers WHERE addr = ?`, addr)
	var p KnownPeer
	if err := row.Scan(&p.Addr, &p.Name, &p.FirstSeen, &p.LastSeen, &p.AutoDial); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// List returns known peers, most recently seen first.
func (r *PeerRepo) List(ctx context.Context) ([]KnownPeer, error) {
	return r.query(ctx, `SELECT addr, name, first_seen, last_seen, auto_dial FROM known_peers ORDER BY last_seen DESC, addr`)
}

// AutoDial returns the peers that should be redialled on startup.
func (r *PeerRepo) AutoDial(ctx context.Context) ([]KnownPeer, error) {
	return r.query(ctx, `SELECT addr, name, first_seen, last_seen, auto_dial FROM known_peers WHERE auto_dial = 1 ORDER BY last_seen DESC, addr`)
}

func (r *PeerRepo) SetAutoDial(ctx context.Context, addr string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE known_peers SET auto_dial = ? WHERE addr = ?`, enabled, addr)
	return err
}

func (r *PeerRepo) Forget(ctx context.Context, addr string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM known_peers WHERE addr = ?`, addr)
	return err
}

func (r *PeerRepo) query(ctx context.Context, q string, args ...any) ([]KnownPeer, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KnownPeer
	for rows.Next() {
		var p KnownPeer
		if err := rows.Scan(&p.Addr, &p.Name, &p.FirstSeen, &p.LastSeen, &p.AutoDial); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
