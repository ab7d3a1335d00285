package license

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"keyverify/entity"
	"keyverify/lib/api/cont"
	"keyverify/lib/api/response"
	"keyverify/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	ResetLicense(ctx context.Context, req *entity.LicenseResetRequest) error
	BlacklistUser(ctx context.Context, req *entity.BlacklistRequest) (*entity.BlacklistResult, error)
}

// Reset hands a license key back to the pool after a refund: one
// decrease-usage call upstream, nothing touched locally.
func Reset(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.license")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("operator", cont.GetUser(r.Context()).Name),
		)

		var req entity.LicenseResetRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			sl.Guild(req.GuildId),
			sl.Product(req.Product),
			sl.Secret("license_key", req.LicenseKey),
		)

		if err := handler.ResetLicense(r.Context(), &req); err != nil {
			logger.Error("reset license", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Reset: %v", err)))
			return
		}
		logger.Debug("license reset")

		render.JSON(w, r, response.Ok(nil))
	}
}

// Blacklist disables every key a user verified with, purges the local
// records and removes the granted roles.
func Blacklist(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.license")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("operator", cont.GetUser(r.Context()).Name),
		)

		var req entity.BlacklistRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			sl.Guild(req.GuildId),
			sl.User(req.UserId),
		)

		result, err := handler.BlacklistUser(r.Context(), &req)
		if err != nil {
			logger.Error("blacklist user", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Blacklist: %v", err)))
			return
		}
		logger.Info("user blacklisted",
			slog.Int("disabled", result.Disabled),
			slog.Int("roles_removed", result.RolesRemoved))

		render.JSON(w, r, response.Ok(result))
	}
}
