package errors

import (
	"log/slog"
	"net/http"

	"keyverify/lib/api/response"

	"github.com/go-chi/render"
)

func NotAllowed(_ *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, 405)
		render.JSON(w, r, response.Error("Method not allowed"))
	}
}
