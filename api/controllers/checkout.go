package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ksmithweb/campusmarket-backend/api/middleware"
	"github.com/ksmithweb/campusmarket-backend/api/responses"
	"github.com/ksmithweb/campusmarket-backend/internal/payments"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

// CheckoutService is the subset of the payments checkout service the
// controllers need.
type CheckoutService interface {
	CheckoutFromCart(ctx context.Context, userID uuid.UUID) (*payments.CheckoutSession, error)
	CheckoutFromBid(ctx context.Context, bidID, actorID uuid.UUID) (*payments.CheckoutSession, error)
	CheckoutOrder(ctx context.Context, orderID, actorID uuid.UUID) (*payments.CheckoutSession, error)
}

// CheckoutCart turns the authenticated user's cart into an order and a
// hosted checkout session.
func CheckoutCart(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		session, err := svc.CheckoutFromCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutBid opens a checkout session for the order behind the buyer's
// accepted bid.
func CheckoutBid(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		session, err := svc.CheckoutFromBid(r.Context(), bidID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutOrderRetry opens a fresh checkout session for a pending order
// whose earlier session was abandoned or expired.
func CheckoutOrderRetry(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actorID := middleware.UserUUIDFromContext(r.Context())
		if actorID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		session, err := svc.CheckoutOrder(r.Context(), orderID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
