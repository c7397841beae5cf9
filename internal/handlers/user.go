package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/handlers/render"
	"github.com/nkiryanov/payouts/internal/handlers/userctx"
	"github.com/nkiryanov/payouts/internal/logger"
)

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	Suspended bool      `json:"suspended"`
}

func handleUserMe(userService userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		user, err := userService.GetUser(r.Context(), actor.ID)
		if err != nil {
			renderError(w, l, "Failed to get user", err)
			return
		}

		render.JSON(w, userResponse{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin, Suspended: user.Suspended})
	})
}

func handleSuspension(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Suspended *bool `json:"suspended" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.FromContext(r.Context())

		userID, err := pathID(r)
		if err != nil {
			render.AppError(w, err)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := userService.SetSuspended(r.Context(), actor, userID, *data.Suspended)
		if err != nil {
			renderError(w, l, "Failed to change user suspension", err)
			return
		}

		l.Info("User suspension changed", "user_id", user.ID, "suspended", user.Suspended, "by", actor.ID)
		render.JSON(w, userResponse{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin, Suspended: user.Suspended})
	})
}
