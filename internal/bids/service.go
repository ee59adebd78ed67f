package bids

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/internal/listings"
	"github.com/ksmithweb/campusmarket-backend/internal/notifications"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	"github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderAssembler interface {
	FromBid(ctx context.Context, tx *gorm.DB, bid *models.Bid) (*models.Order, error)
}

// ServiceParams carries the dependencies for the bids service.
type ServiceParams struct {
	TxRunner    txRunner
	BidRepo     Repository
	ListingRepo listings.Repository
	Assembler   orderAssembler
	Notifier    notifications.Sink
	Logger      *logger.Logger
}

// Service drives bids through their lifecycle: placement, counter-offers,
// acceptance with sibling rejection, and seller-side finalization.
type Service struct {
	tx        txRunner
	bids      Repository
	listings  listings.Repository
	assembler orderAssembler
	notifier  notifications.Sink
	log       *logger.Logger
}

// NewService builds the bids service.
func NewService(p ServiceParams) (*Service, error) {
	if p.TxRunner == nil {
		return nil, fmt.Errorf("bids: tx runner is required")
	}
	if p.BidRepo == nil {
		return nil, fmt.Errorf("bids: bid repository is required")
	}
	if p.ListingRepo == nil {
		return nil, fmt.Errorf("bids: listing repository is required")
	}
	if p.Assembler == nil {
		return nil, fmt.Errorf("bids: order assembler is required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("bids: notifier is required")
	}
	return &Service{
		tx:        p.TxRunner,
		bids:      p.BidRepo,
		listings:  p.ListingRepo,
		assembler: p.Assembler,
		notifier:  p.Notifier,
		log:       p.Logger,
	}, nil
}

// CreateBidParams is the validated input for placing a bid.
type CreateBidParams struct {
	ListingID  uuid.UUID
	BuyerID    uuid.UUID
	PriceCents int
	Terms      *string
}

// AcceptResult bundles the accepted bid with the order assembled from it.
type AcceptResult struct {
	Bid   *models.Bid
	Order *models.Order
}

type pendingNote struct {
	userID   uuid.UUID
	category enums.NotificationCategory
	body     string
}

// Create places a new PENDING bid on an open listing.
func (s *Service) Create(ctx context.Context, p CreateBidParams) (*models.Bid, error) {
	if p.PriceCents <= 0 {
		return nil, errors.New(errors.CodeValidation, "bid price must be positive")
	}
	listing, err := s.listings.FindByID(ctx, p.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "listing not found")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load listing")
	}
	if listing.SellerID == p.BuyerID {
		return nil, errors.New(errors.CodeValidation, "sellers cannot bid on their own listing")
	}
	if !listing.AllowBids || listing.Status != enums.ListingStatusActive {
		return nil, errors.New(errors.CodeStateConflict, "listing is not open for bidding")
	}
	if p.PriceCents < listing.FloorPriceCents {
		return nil, errors.New(errors.CodeValidation, "bid is below the listing floor price")
	}

	bid := &models.Bid{
		ListingID:  p.ListingID,
		BuyerID:    p.BuyerID,
		PriceCents: p.PriceCents,
		Terms:      p.Terms,
		Status:     enums.BidStatusPending,
	}
	created, err := s.bids.Create(ctx, bid)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "create bid")
	}

	s.notifier.Send(ctx, listing.SellerID, enums.NotificationBidReceived,
		fmt.Sprintf("New offer of %s on %q", formatCents(p.PriceCents), listing.Title))
	return created, nil
}

// Counter records a seller counter-offer: the original bid is marked
// COUNTERED and a new COUNTERED row carries the seller's price back to
// the buyer.
func (s *Service) Counter(ctx context.Context, bidID, actorID uuid.UUID, priceCents int, terms *string) (*models.Bid, error) {
	if priceCents <= 0 {
		return nil, errors.New(errors.CodeValidation, "counter price must be positive")
	}

	var (
		counter *models.Bid
		note    pendingNote
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bids.WithTx(tx)
		bid, err := repo.FindByID(ctx, bidID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "bid not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load bid")
		}
		listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, bid.ListingID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load listing")
		}
		if listing.SellerID != actorID {
			return errors.New(errors.CodeForbidden, "only the seller can counter a bid")
		}
		if !bid.Status.IsOpen() {
			return errors.New(errors.CodeStateConflict,
				fmt.Sprintf("bid is %s and can no longer be countered", bid.Status))
		}

		bid.Status = enums.BidStatusCountered
		if err := repo.Update(ctx, bid); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "update original bid")
		}

		counter = &models.Bid{
			ListingID:  bid.ListingID,
			BuyerID:    bid.BuyerID,
			PriceCents: priceCents,
			Terms:      terms,
			Status:     enums.BidStatusCountered,
		}
		if _, err := repo.Create(ctx, counter); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "create counter bid")
		}

		note = pendingNote{
			userID:   bid.BuyerID,
			category: enums.NotificationBidCountered,
			body: fmt.Sprintf("The seller countered your offer on %q with %s",
				listing.Title, formatCents(priceCents)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, note.userID, note.category, note.body)
	return counter, nil
}

// UpdateStatus applies a seller-driven status change. ACCEPTED routes
// through AcceptSingle; REJECTED and COUNTERED update the bid in place.
func (s *Service) UpdateStatus(ctx context.Context, bidID, actorID uuid.UUID, next enums.BidStatus) (*models.Bid, error) {
	switch next {
	case enums.BidStatusAccepted:
		res, err := s.AcceptSingle(ctx, bidID, actorID)
		if err != nil {
			return nil, err
		}
		return res.Bid, nil
	case enums.BidStatusRejected, enums.BidStatusCountered:
		// fall through
	default:
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("status %q cannot be set directly", next))
	}

	var (
		updated *models.Bid
		note    *pendingNote
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bids.WithTx(tx)
		bid, err := repo.FindByID(ctx, bidID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "bid not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load bid")
		}
		listing, err := s.listings.WithTx(tx).FindByID(ctx, bid.ListingID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load listing")
		}
		if listing.SellerID != actorID {
			return errors.New(errors.CodeForbidden, "only the seller can update a bid")
		}
		if !bid.Status.IsOpen() {
			return errors.New(errors.CodeStateConflict,
				fmt.Sprintf("bid is %s and can no longer change", bid.Status))
		}

		bid.Status = next
		if err := repo.Update(ctx, bid); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "update bid status")
		}
		updated = bid

		if next == enums.BidStatusRejected {
			note = &pendingNote{
				userID:   bid.BuyerID,
				category: enums.NotificationBidRejected,
				body:     fmt.Sprintf("Your offer on %q was declined", listing.Title),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if note != nil {
		s.notifier.Send(ctx, note.userID, note.category, note.body)
	}
	return updated, nil
}

// AcceptSingle accepts one bid: every other open bid on the listing is
// rejected, the listing leaves ACTIVE, and a pending order is assembled
// from the accepted bid, all in one transaction.
func (s *Service) AcceptSingle(ctx context.Context, bidID, actorID uuid.UUID) (*AcceptResult, error) {
	var (
		result AcceptResult
		notes  []pendingNote
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bids.WithTx(tx)
		bid, err := repo.FindByID(ctx, bidID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "bid not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load bid")
		}
		listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, bid.ListingID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load listing")
		}
		if listing.SellerID != actorID {
			return errors.New(errors.CodeForbidden, "only the seller can accept a bid")
		}
		if !bid.Status.IsOpen() {
			return errors.New(errors.CodeStateConflict,
				fmt.Sprintf("bid is %s and can no longer be accepted", bid.Status))
		}
		if listing.Status != enums.ListingStatusActive {
			return errors.New(errors.CodeStateConflict, "listing is no longer accepting bids")
		}

		notes, err = s.acceptLocked(ctx, tx, repo, listing, bid, &result)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Info(s.log.WithListingID(ctx, result.Bid.ListingID.String()), "bid accepted")
	}
	for _, n := range notes {
		s.notifier.Send(ctx, n.userID, n.category, n.body)
	}
	return &result, nil
}

// FinalizeBidding closes bidding on a listing by accepting the best
// PENDING bid: highest price wins, earliest placement breaks price ties.
// COUNTERED rows are the seller's own offers awaiting buyer assent and
// are never finalize candidates, though they still get rejected with the
// other losers.
func (s *Service) FinalizeBidding(ctx context.Context, listingID, actorID uuid.UUID) (*AcceptResult, error) {
	var (
		result AcceptResult
		notes  []pendingNote
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, listingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "listing not found")
			}
			return errors.Wrap(errors.CodeInternal, err, "load listing")
		}
		if listing.SellerID != actorID {
			return errors.New(errors.CodeForbidden, "only the seller can finalize bidding")
		}
		if listing.Status != enums.ListingStatusActive {
			return errors.New(errors.CodeStateConflict, "listing is no longer accepting bids")
		}

		repo := s.bids.WithTx(tx)
		open, err := repo.ListOpenByListing(ctx, listingID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "list open bids")
		}
		var candidates []models.Bid
		for _, b := range open {
			if b.Status == enums.BidStatusPending {
				candidates = append(candidates, b)
			}
		}
		if len(candidates) == 0 {
			return errors.New(errors.CodeStateConflict, "listing has no pending bids to finalize")
		}

		winner := pickWinningBid(candidates)
		notes, err = s.acceptLocked(ctx, tx, repo, listing, winner, &result)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Info(s.log.WithListingID(ctx, listingID.String()), "bidding finalized")
	}
	for _, n := range notes {
		s.notifier.Send(ctx, n.userID, n.category, n.body)
	}
	return &result, nil
}

// acceptLocked applies the acceptance effects inside the caller's
// transaction. The listing row must already be locked.
func (s *Service) acceptLocked(ctx context.Context, tx *gorm.DB, repo Repository, listing *models.Listing, bid *models.Bid, out *AcceptResult) ([]pendingNote, error) {
	open, err := repo.ListOpenByListing(ctx, listing.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list open bids")
	}

	var (
		rejectIDs []uuid.UUID
		notes     []pendingNote
	)
	for _, sibling := range open {
		if sibling.ID == bid.ID {
			continue
		}
		rejectIDs = append(rejectIDs, sibling.ID)
		notes = append(notes, pendingNote{
			userID:   sibling.BuyerID,
			category: enums.NotificationBidRejected,
			body:     fmt.Sprintf("Your offer on %q was declined", listing.Title),
		})
	}
	if err := repo.MarkRejected(ctx, rejectIDs); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "reject sibling bids")
	}

	bid.Status = enums.BidStatusAccepted

	listing.Status = enums.ListingStatusInactive
	if err := s.listings.WithTx(tx).Update(ctx, listing); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "update listing status")
	}

	order, err := s.assembler.FromBid(ctx, tx, bid)
	if err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, bid); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "persist accepted bid")
	}

	notes = append(notes, pendingNote{
		userID:   bid.BuyerID,
		category: enums.NotificationBidAccepted,
		body: fmt.Sprintf("Your offer of %s on %q was accepted",
			formatCents(bid.PriceCents), listing.Title),
	})

	out.Bid = bid
	out.Order = order
	return notes, nil
}

// pickWinningBid selects the highest-priced candidate, breaking price
// ties by placement time and then by id so the choice is deterministic.
func pickWinningBid(open []models.Bid) *models.Bid {
	winner := &open[0]
	for i := 1; i < len(open); i++ {
		b := &open[i]
		switch {
		case b.PriceCents > winner.PriceCents:
			winner = b
		case b.PriceCents == winner.PriceCents && b.CreatedAt.Before(winner.CreatedAt):
			winner = b
		case b.PriceCents == winner.PriceCents && b.CreatedAt.Equal(winner.CreatedAt) &&
			b.ID.String() < winner.ID.String():
			winner = b
		}
	}
	return winner
}

// ListByListing returns every bid on a listing, oldest first.
func (s *Service) ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error) {
	rows, err := s.bids.ListByListing(ctx, listingID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list bids for listing")
	}
	return rows, nil
}

// ListByBuyer returns a buyer's bids, newest first.
func (s *Service) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Bid, error) {
	rows, err := s.bids.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "list bids for buyer")
	}
	return rows, nil
}

// ActiveCount reports how many open bids a listing currently has.
func (s *Service) ActiveCount(ctx context.Context, listingID uuid.UUID) (int64, error) {
	count, err := s.bids.CountOpenByListing(ctx, listingID)
	if err != nil {
		return 0, errors.Wrap(errors.CodeInternal, err, "count open bids")
	}
	return count, nil
}

func formatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
