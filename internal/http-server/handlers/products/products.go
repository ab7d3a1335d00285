package products

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"keyverify/entity"
	"keyverify/lib/api/response"
	"keyverify/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	Products(ctx context.Context, guildId string) ([]*entity.Product, error)
}

// List returns a guild's product catalogue. Secrets never leave the
// store decrypted and are excluded from the JSON shape anyway.
func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.products")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		guildId := chi.URLParam(r, "guild")
		if guildId == "" {
			render.Status(r, 400)
			render.JSON(w, r, response.Error("Guild id is required"))
			return
		}
		logger = logger.With(sl.Guild(guildId))

		list, err := handler.Products(r.Context(), guildId)
		if err != nil {
			logger.Error("list products", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("List: %v", err)))
			return
		}
		logger.Debug("products listed", slog.Int("count", len(list)))

		render.JSON(w, r, response.Ok(list))
	}
}
