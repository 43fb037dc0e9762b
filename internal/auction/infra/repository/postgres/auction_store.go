package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rparedes/callbid/internal/auction/domain"
)

const auctionColumns = `
    id, title, description, duration_minutes, call_starts_at,
    bidding_starts_at, bidding_ends_at, starting_bid_cents, min_increment_cents, currency,
    status, current_bid_cents, leading_bidder_id, leading_bid_id, bid_count,
    extension_count, last_bid_at, revision,
    anti_snipe_enabled, anti_snipe_window_seconds, anti_snipe_extend_seconds, anti_snipe_max_extensions,
    settled_at, booking_confirmed_at, winner_notified_at, admin_notified_at,
    winner_user_id, winning_bid_id, meeting_access_ref, admin_notes, cancel_reason,
    created_at, updated_at`

// AuctionStore implements domain.AuctionStore on Postgres. The conditional
// update in Update is the whole concurrency story: no row locks, no
// transactions held across application logic.
type AuctionStore struct {
	pool *pgxpool.Pool
}

func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

func (s *AuctionStore) Create(ctx context.Context, a *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
                $11, $12, $13, $14, $15, $16, $17, $18,
                $19, $20, $21, $22,
                $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)
    `
	_, err := s.pool.Exec(ctx, query, auctionArgs(a)...)
	return err
}

// Update commits the aggregate only when the stored revision still equals
// a.Revision. Zero rows affected means another commit won the race.
func (s *AuctionStore) Update(ctx context.Context, a *domain.Auction) error {
	query := `
        UPDATE auctions SET
            title = $3, description = $4, duration_minutes = $5, call_starts_at = $6,
            bidding_starts_at = $7, bidding_ends_at = $8, starting_bid_cents = $9,
            min_increment_cents = $10, currency = $11,
            status = $12, current_bid_cents = $13, leading_bidder_id = $14,
            leading_bid_id = $15, bid_count = $16, extension_count = $17, last_bid_at = $18,
            anti_snipe_enabled = $19, anti_snipe_window_seconds = $20,
            anti_snipe_extend_seconds = $21, anti_snipe_max_extensions = $22,
            settled_at = $23, booking_confirmed_at = $24, winner_notified_at = $25,
            admin_notified_at = $26, winner_user_id = $27, winning_bid_id = $28,
            meeting_access_ref = $29, admin_notes = $30, cancel_reason = $31,
            updated_at = $32,
            revision = revision + 1
        WHERE id = $1 AND revision = $2
    `
	tag, err := s.pool.Exec(ctx, query,
		a.ID, a.Revision,
		a.Title, a.Description, a.DurationMinutes, a.CallStartsAt,
		a.BiddingStartsAt, a.BiddingEndsAt, a.StartingBidCents,
		a.MinIncrementCents, a.Currency,
		a.Status, a.CurrentBidCents, a.LeadingBidderID,
		a.LeadingBidID, a.BidCount, a.ExtensionCount, a.LastBidAt,
		a.AntiSnipe.Enabled, a.AntiSnipe.WindowSeconds,
		a.AntiSnipe.ExtendSeconds, a.AntiSnipe.MaxExtensions,
		a.SettledAt, a.BookingConfirmedAt, a.WinnerNotifiedAt,
		a.AdminNotifiedAt, a.WinnerUserID, a.WinningBidID,
		a.MeetingAccessRef, a.AdminNotes, a.CancelReason,
		a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRevisionConflict
	}
	a.Revision++
	return nil
}

func (s *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *AuctionStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 ORDER BY bidding_ends_at ASC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryAuctions(ctx, query, args...)
}

func (s *AuctionStore) ListDueToOpen(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND bidding_starts_at <= $2`
	return s.queryAuctions(ctx, query, domain.StatusScheduled, now)
}

func (s *AuctionStore) ListDueToClose(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = $1 AND bidding_ends_at <= $2`
	return s.queryAuctions(ctx, query, domain.StatusLive, now)
}

func (s *AuctionStore) ListFinished(ctx context.Context, limit int) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
        WHERE status = ANY($1)
        ORDER BY bidding_ends_at DESC
        LIMIT $2`
	statuses := []string{string(domain.StatusEnded), string(domain.StatusSettled), string(domain.StatusCancelled)}
	return s.queryAuctions(ctx, query, statuses, limit)
}

func (s *AuctionStore) queryAuctions(ctx context.Context, query string, args ...any) ([]*domain.Auction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return auctions, nil
}

func auctionArgs(a *domain.Auction) []any {
	return []any{
		a.ID, a.Title, a.Description, a.DurationMinutes, a.CallStartsAt,
		a.BiddingStartsAt, a.BiddingEndsAt, a.StartingBidCents, a.MinIncrementCents, a.Currency,
		a.Status, a.CurrentBidCents, a.LeadingBidderID, a.LeadingBidID, a.BidCount,
		a.ExtensionCount, a.LastBidAt, a.Revision,
		a.AntiSnipe.Enabled, a.AntiSnipe.WindowSeconds, a.AntiSnipe.ExtendSeconds, a.AntiSnipe.MaxExtensions,
		a.SettledAt, a.BookingConfirmedAt, a.WinnerNotifiedAt, a.AdminNotifiedAt,
		a.WinnerUserID, a.WinningBidID, a.MeetingAccessRef, a.AdminNotes, a.CancelReason,
		a.CreatedAt, a.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	a := &domain.Auction{}
	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.DurationMinutes, &a.CallStartsAt,
		&a.BiddingStartsAt, &a.BiddingEndsAt, &a.StartingBidCents, &a.MinIncrementCents, &a.Currency,
		&a.Status, &a.CurrentBidCents, &a.LeadingBidderID, &a.LeadingBidID, &a.BidCount,
		&a.ExtensionCount, &a.LastBidAt, &a.Revision,
		&a.AntiSnipe.Enabled, &a.AntiSnipe.WindowSeconds, &a.AntiSnipe.ExtendSeconds, &a.AntiSnipe.MaxExtensions,
		&a.SettledAt, &a.BookingConfirmedAt, &a.WinnerNotifiedAt, &a.AdminNotifiedAt,
		&a.WinnerUserID, &a.WinningBidID, &a.MeetingAccessRef, &a.AdminNotes, &a.CancelReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan auction: %w", err)
	}
	return a, nil
}
