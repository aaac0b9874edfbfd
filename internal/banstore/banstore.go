// Package banstore persists the server's address ban list in PostgreSQL.
// The engine itself never talks to the database; the outer loop loads the
// rules at startup (and on operator-triggered reloads) and installs them
// with Server.SetBanRules.
package banstore

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Rule is one persisted CIDR rule. IsException marks an allow rule that
// short-circuits any later ban match for addresses it covers.
type Rule struct {
	CIDR        netip.Prefix
	IsException bool
}

// Store wraps a pgx connection pool for ban list operations.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a Store handle.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Load reads every ban rule in insertion order. Rows whose CIDR no longer
// parses (manual edits happen) are skipped rather than failing the whole
// load, so one bad row cannot leave the server with no ban list at all.
func (s *Store) Load(ctx context.Context) ([]Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cidr::text, is_exception FROM bans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying bans: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var cidr string
		var isException bool
		if err := rows.Scan(&cidr, &isException); err != nil {
			return nil, fmt.Errorf("scanning ban row: %w", err)
		}
		rule, err := ParseRule(cidr, isException)
		if err != nil {
			continue
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ban rows: %w", err)
	}
	return rules, nil
}

// Add inserts a new ban (or exception) rule.
func (s *Store) Add(ctx context.Context, rule Rule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bans (cidr, is_exception) VALUES ($1, $2)`,
		rule.CIDR.String(), rule.IsException,
	)
	if err != nil {
		return fmt.Errorf("inserting ban %s: %w", rule.CIDR, err)
	}
	return nil
}

// Remove deletes every rule matching the given CIDR exactly.
func (s *Store) Remove(ctx context.Context, cidr netip.Prefix) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM bans WHERE cidr = $1`, cidr.String(),
	)
	if err != nil {
		return fmt.Errorf("deleting ban %s: %w", cidr, err)
	}
	return nil
}

// ParseRule builds a Rule from its stored text form. A bare address is
// widened to a full-length prefix so "203.0.113.7" and "203.0.113.7/32"
// mean the same thing.
func ParseRule(cidr string, isException bool) (Rule, error) {
	if p, err := netip.ParsePrefix(cidr); err == nil {
		return Rule{CIDR: p.Masked(), IsException: isException}, nil
	}
	addr, err := netip.ParseAddr(cidr)
	if err != nil {
		return Rule{}, fmt.Errorf("parsing ban cidr %q: %w", cidr, err)
	}
	return Rule{CIDR: netip.PrefixFrom(addr, addr.BitLen()), IsException: isException}, nil
}
