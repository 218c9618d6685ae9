package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// RedeemOutcome classifies the result of a code redemption attempt.
type RedeemOutcome int

const (
	RedeemLinked RedeemOutcome = iota
	RedeemAlreadyLinked
	RedeemExpired
	RedeemInvalid
)

// errAbort forces a rollback on paths that must leave the store untouched.
var errAbort = errors.New("abort transaction")

type LinkRepository struct {
	pool *pgxpool.Pool
}

func NewLinkRepository(pool *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{pool: pool}
}

// SavePendingCode stores a freshly issued code for a Discord user, replacing
// any code that user already had. Returns saved=false when another user holds
// the code, in which case the caller should draw a new one. The uniqueness
// check and the write run in one transaction; the unique index on code makes
// a concurrent duplicate a conflict rather than a silent double-issue.
func (r *LinkRepository) SavePendingCode(ctx context.Context, discordID, code string, cutoff time.Time) (bool, error) {
	saved := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// An expired row still occupies the index; evict it so the code is
		// issuable again.
		_, err := tx.Exec(ctx,
			`DELETE FROM pending_links WHERE code = $1 AND created_at < $2`,
			code, cutoff,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pending_links (discord_id, code, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (discord_id) DO UPDATE SET code = $2, created_at = NOW()
		`, discordID, code)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return errAbort
			}
			return err
		}
		saved = true
		return nil
	})
	if err != nil && !errors.Is(err, errAbort) {
		return false, err
	}
	return saved, nil
}

// Redeem consumes a pending code and creates the account link, all in one
// transaction. Returns the outcome and, on RedeemLinked, the Discord id the
// code belonged to. The consume is an atomic delete-and-return, so under
// concurrent redemptions of the same code exactly one caller can win; the
// rest observe RedeemInvalid.
func (r *LinkRepository) Redeem(ctx context.Context, uuid, code string, cutoff time.Time) (RedeemOutcome, string, error) {
	var outcome RedeemOutcome
	var discordID string

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var existing string
		err := tx.QueryRow(ctx,
			`SELECT discord_id FROM linked_accounts WHERE uuid = $1`, uuid,
		).Scan(&existing)
		if err == nil {
			outcome = RedeemAlreadyLinked
			return errAbort
		}
		if err != pgx.ErrNoRows {
			return err
		}

		err = tx.QueryRow(ctx,
			`DELETE FROM pending_links WHERE code = $1 AND created_at >= $2 RETURNING discord_id`,
			code, cutoff,
		).Scan(&discordID)
		if err == pgx.ErrNoRows {
			// No fresh row. A stale row with the same value is expired: drop
			// it so a retry with the same code reports invalid, not expired.
			// The cutoff guard keeps a fresh row inserted by a concurrent
			// issue out of reach.
			var stale string
			err = tx.QueryRow(ctx,
				`DELETE FROM pending_links WHERE code = $1 AND created_at < $2 RETURNING discord_id`,
				code, cutoff,
			).Scan(&stale)
			if err == pgx.ErrNoRows {
				outcome = RedeemInvalid
				return errAbort
			}
			if err != nil {
				return err
			}
			outcome = RedeemExpired
			return nil
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO linked_accounts (uuid, discord_id) VALUES ($1, $2) ON CONFLICT (uuid) DO NOTHING`,
			uuid, discordID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Lost a race to another link for the same uuid. Roll back so the
			// consumed code is restored.
			outcome = RedeemAlreadyLinked
			discordID = ""
			return errAbort
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO verified_users (discord_id, verified)
			VALUES ($1, TRUE)
			ON CONFLICT (discord_id) DO UPDATE SET verified = TRUE
		`, discordID)
		if err != nil {
			return err
		}

		outcome = RedeemLinked
		return nil
	})
	if err != nil && !errors.Is(err, errAbort) {
		return 0, "", err
	}
	return outcome, discordID, nil
}

// Unlink removes the account link and the verified flag in one transaction.
// The second return value is the Discord id that was linked, so the caller
// can revoke the role grant. Returns found=false when the uuid had no link.
func (r *LinkRepository) Unlink(ctx context.Context, uuid string) (bool, string, error) {
	var discordID string

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`DELETE FROM linked_accounts WHERE uuid = $1 RETURNING discord_id`, uuid,
		).Scan(&discordID)
		if err == pgx.ErrNoRows {
			return errAbort
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM verified_users WHERE discord_id = $1`, discordID)
		return err
	})
	if errors.Is(err, errAbort) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, discordID, nil
}

// OwnerOf returns the Discord id linked to a uuid, or "" when unlinked.
func (r *LinkRepository) OwnerOf(ctx context.Context, uuid string) (string, error) {
	var discordID string
	err := r.pool.QueryRow(ctx,
		`SELECT discord_id FROM linked_accounts WHERE uuid = $1`, uuid,
	).Scan(&discordID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return discordID, nil
}

// CountLinks returns the number of linked accounts.
func (r *LinkRepository) CountLinks(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM linked_accounts`).Scan(&count)
	return count, err
}

// CountPending returns the number of unexpired pending codes.
func (r *LinkRepository) CountPending(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_links WHERE created_at >= $1`, cutoff,
	).Scan(&count)
	return count, err
}
