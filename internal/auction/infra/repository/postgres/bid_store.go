package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rparedes/callbid/internal/auction/domain"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on (auction_id, user_id, idempotency_key).
const uniqueViolation = "23505"

// BidStore implements domain.BidStore on Postgres. Bids are append-only; the
// only constraint the store enforces is idempotency-key uniqueness.
type BidStore struct {
	pool *pgxpool.Pool
}

func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

func (s *BidStore) Insert(ctx context.Context, b *domain.Bid) error {
	query := `
        INSERT INTO bids (id, auction_id, user_id, amount_cents, currency, placed_at, idempotency_key, extended_deadline)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := s.pool.Exec(ctx, query,
		b.ID, b.AuctionID, b.UserID, b.AmountCents, b.Currency,
		b.PlacedAt, b.IdempotencyKey, b.ExtendedDeadline,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateBid
		}
		return err
	}
	return nil
}

func (s *BidStore) FindByIdempotencyKey(ctx context.Context, auctionID, userID uuid.UUID, key string) (*domain.Bid, error) {
	query := `
        SELECT id, auction_id, user_id, amount_cents, currency, placed_at, idempotency_key, extended_deadline
        FROM bids
        WHERE auction_id = $1 AND user_id = $2 AND idempotency_key = $3
    `
	b := &domain.Bid{}
	err := s.pool.QueryRow(ctx, query, auctionID, userID, key).Scan(
		&b.ID, &b.AuctionID, &b.UserID, &b.AmountCents, &b.Currency,
		&b.PlacedAt, &b.IdempotencyKey, &b.ExtendedDeadline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (s *BidStore) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, user_id, amount_cents, currency, placed_at, idempotency_key, extended_deadline
        FROM bids
        WHERE auction_id = $1
        ORDER BY amount_cents DESC, placed_at ASC
    `
	rows, err := s.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		b := &domain.Bid{}
		err := rows.Scan(
			&b.ID, &b.AuctionID, &b.UserID, &b.AmountCents, &b.Currency,
			&b.PlacedAt, &b.IdempotencyKey, &b.ExtendedDeadline,
		)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

func (s *BidStore) CountByAuction(ctx context.Context, auctionID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&n)
	return n, err
}
