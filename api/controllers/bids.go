package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/api/middleware"
	"github.com/ksmithweb/campusmarket-backend/api/responses"
	"github.com/ksmithweb/campusmarket-backend/api/validators"
	"github.com/ksmithweb/campusmarket-backend/internal/bids"
	"github.com/ksmithweb/campusmarket-backend/pkg/db/models"
	"github.com/ksmithweb/campusmarket-backend/pkg/enums"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

// BidService is the subset of the bids service the controllers need.
type BidService interface {
	Create(ctx context.Context, p bids.CreateBidParams) (*models.Bid, error)
	Counter(ctx context.Context, bidID, actorID uuid.UUID, priceCents int, terms *string) (*models.Bid, error)
	UpdateStatus(ctx context.Context, bidID, actorID uuid.UUID, next enums.BidStatus) (*models.Bid, error)
	AcceptSingle(ctx context.Context, bidID, actorID uuid.UUID) (*bids.AcceptResult, error)
	FinalizeBidding(ctx context.Context, listingID, actorID uuid.UUID) (*bids.AcceptResult, error)
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Bid, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Bid, error)
	ActiveCount(ctx context.Context, listingID uuid.UUID) (int64, error)
}

type createBidRequest struct {
	ListingID  string  `json:"listing_id" validate:"required,uuid"`
	PriceCents int     `json:"price_cents" validate:"required,gt=0"`
	Terms      *string `json:"terms,omitempty" validate:"omitempty,max=500"`
}

type counterBidRequest struct {
	PriceCents int     `json:"price_cents" validate:"required,gt=0"`
	Terms      *string `json:"terms,omitempty" validate:"omitempty,max=500"`
}

type bidStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected countered"`
}

// CreateBid places a bid on a listing for the authenticated buyer.
func CreateBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		buyerID := middleware.UserUUIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		var req createBidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		bid, err := svc.Create(r.Context(), bids.CreateBidParams{
			ListingID:  listingID,
			BuyerID:    buyerID,
			PriceCents: req.PriceCents,
			Terms:      req.Terms,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bid)
	}
}

// CounterBid records a seller counter-offer against a bid.
func CounterBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		actorID := middleware.UserUUIDFromContext(r.Context())
		if actorID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		bidID, err := uuid.Parse(chi.URLParam(r, "bidID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid id"))
			return
		}

		var req counterBidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counter, err := svc.Counter(r.Context(), bidID, actorID, req.PriceCents, req.Terms)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, counter)
	}
}

// UpdateBidStatus applies a seller decision to a bid. Accepting routes
// through the exclusive-acceptance path and returns the created order.
func UpdateBidStatus(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		actorID := middleware.UserUUIDFromContext(r.Context())
		if actorID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		bidID, err := uuid.Parse(chi.URLParam(r, "bidID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid id"))
			return
		}

		var req bidStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bid, err := svc.UpdateStatus(r.Context(), bidID, actorID, enums.BidStatus(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bid)
	}
}

// AcceptBid accepts one bid, rejecting its open siblings and assembling
// the winner's order.
func AcceptBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		actorID := middleware.UserUUIDFromContext(r.Context())
		if actorID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		bidID, err := uuid.Parse(chi.URLParam(r, "bidID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid id"))
			return
		}

		result, err := svc.AcceptSingle(r.Context(), bidID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"bid":   result.Bid,
			"order": result.Order,
		})
	}
}

// FinalizeBidding accepts the best open bid on the seller's listing.
func FinalizeBidding(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		actorID := middleware.UserUUIDFromContext(r.Context())
		if actorID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		result, err := svc.FinalizeBidding(r.Context(), listingID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"bid":   result.Bid,
			"order": result.Order,
		})
	}
}

// ListListingBids returns all bids on a listing, oldest first.
func ListListingBids(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		rows, err := svc.ListByListing(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// ListMyBids returns the authenticated buyer's bids, newest first.
func ListMyBids(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		buyerID := middleware.UserUUIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		rows, err := svc.ListByBuyer(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// ListingBidCount reports how many open bids a listing has.
func ListingBidCount(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
			return
		}

		count, err := svc.ActiveCount(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"active_bids": count})
	}
}
