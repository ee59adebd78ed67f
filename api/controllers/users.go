package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksmithweb/campusmarket-backend/api/middleware"
	"github.com/ksmithweb/campusmarket-backend/api/responses"
	"github.com/ksmithweb/campusmarket-backend/internal/users"
	pkgerrors "github.com/ksmithweb/campusmarket-backend/pkg/errors"
	"github.com/ksmithweb/campusmarket-backend/pkg/logger"
)

type profileResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Verified    bool      `json:"verified"`
}

// Me returns the authenticated user's profile.
func Me(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users repository unavailable"))
			return
		}
		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
			return
		}

		user, err := repo.FindByID(r.Context(), userID)
		if err != nil {
			if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "user not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
			return
		}
		responses.WriteSuccess(w, profileResponse{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Verified:    user.Verified,
		})
	}
}
