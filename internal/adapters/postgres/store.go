// Package postgres implements core.Persistence on top of a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

// Connect creates a pool for dsn and verifies the connection with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	name       TEXT NOT NULL,
	icon       TEXT NOT NULL DEFAULT '',
	roles      TEXT[] NOT NULL DEFAULT '{}',
	joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	room_id    TEXT
);
CREATE INDEX IF NOT EXISTS users_room_id_idx ON users (room_id);

CREATE TABLE IF NOT EXISTS bans (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true
);
CREATE INDEX IF NOT EXISTS bans_user_id_idx ON bans (user_id) WHERE active;

CREATE TABLE IF NOT EXISTS invites (
	id             TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by     TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT true,
	room_id        TEXT NOT NULL,
	code           TEXT NOT NULL UNIQUE,
	max_uses       INTEGER NOT NULL DEFAULT 1,
	unlimited_uses BOOLEAN NOT NULL DEFAULT false,
	uses           TEXT[] NOT NULL DEFAULT '{}'
);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ core.Persistence = (*Store)(nil)

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	log.Info().Str("module", "postgres").Msg("schema ready")
	return nil
}

const userColumns = `id, username, name, icon, roles, joined_at, room_id`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u     domain.User
		roles []string
		room  *string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Icon, &roles, &u.JoinedAt, &room); err != nil {
		return nil, err
	}
	u.Roles = make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, domain.Role(r))
	}
	if room != nil && *room != "" {
		u.Room = domain.UnresolvedRoom(domain.RoomID(*room))
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, domain.Transient("find user", err)
	}
	return u, nil
}

func (s *Store) UpdateUserRoom(ctx context.Context, id domain.UserID, room domain.RoomID) error {
	var arg *string
	if room != "" {
		r := string(room)
		arg = &r
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET room_id = $2 WHERE id = $1`, id, arg)
	if err != nil {
		return domain.Transient("update user room", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, id domain.UserID, name, icon string) (*domain.User, error) {
	if err := domain.ValidateProfile(name, icon); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, icon = $3 WHERE id = $1 RETURNING `+userColumns,
		id, name, icon)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, domain.Transient("update user profile", err)
	}
	return u, nil
}

func (s *Store) FindRoomMembers(ctx context.Context, room domain.RoomID) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE room_id = $1 ORDER BY id`, room)
	if err != nil {
		return nil, domain.Transient("find room members", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, domain.Transient("scan room member", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("find room members", err)
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id domain.UserID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return domain.Transient("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) FindActiveBan(ctx context.Context, user domain.UserID) (*domain.Ban, error) {
	var b domain.Ban
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, created_by, user_id, reason, active
		   FROM bans WHERE user_id = $1 AND active LIMIT 1`, user).
		Scan(&b.ID, &b.CreatedAt, &b.CreatedBy, &b.UserID, &b.Reason, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBanNotFound
	}
	if err != nil {
		return nil, domain.Transient("find ban", err)
	}
	return &b, nil
}

func (s *Store) FindInvite(ctx context.Context, code string) (*domain.Invite, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE code = $1`, code)
	inv, err := scanInvite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInviteNotFound
	}
	if err != nil {
		return nil, domain.Transient("find invite", err)
	}
	return inv, nil
}

const inviteColumns = `id, created_at, created_by, active, room_id, code, max_uses, unlimited_uses, uses`

func scanInvite(row pgx.Row) (*domain.Invite, error) {
	var (
		inv  domain.Invite
		uses []string
	)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.CreatedBy, &inv.Active, &inv.RoomID, &inv.Code,
		&inv.MaxUses, &inv.UnlimitedUses, &uses); err != nil {
		return nil, err
	}
	for _, u := range uses {
		inv.Uses = append(inv.Uses, domain.UserID(u))
	}
	return &inv, nil
}

// ReserveInviteUse appends user to the invite's uses in a single guarded
// UPDATE, so concurrent redeemers cannot exceed max_uses.
func (s *Store) ReserveInviteUse(ctx context.Context, code string, user domain.UserID) (*domain.Invite, bool, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE invites SET uses = array_append(uses, $2)
		  WHERE code = $1 AND active
		    AND NOT ($2 = ANY(uses))
		    AND (unlimited_uses OR cardinality(uses) < max_uses)
		  RETURNING `+inviteColumns, code, string(user))
	inv, err := scanInvite(row)
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.Transient("reserve invite use", err)
	}

	inv, err = s.FindInvite(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if inv.Active && inv.UsedBy(user) {
		return inv, false, nil
	}
	return nil, false, fmt.Errorf("%w: invite %s is not redeemable", domain.ErrInvalid, code)
}

func (s *Store) ReleaseInviteUse(ctx context.Context, code string, user domain.UserID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invites SET uses = array_remove(uses, $2) WHERE code = $1`, code, string(user))
	if err != nil {
		return domain.Transient("release invite use", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInviteNotFound
	}
	return nil
}
