package remove

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	strg "github.com/gabrielmz/pdv-service/internal/storage"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type ProductRemover interface {
	DeleteProduct(ctx context.Context, codigo string) error
}

// New returns the DELETE /api/products/{codigo} handler. The row is removed
// from Postgres and then evicted from the cache.
func New(ctx context.Context, log *slog.Logger, storage ProductRemover, cache ProductRemover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.product.remove.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		codigo := chi.URLParam(r, "codigo")
		if codigo == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("codigo is required"))

			return
		}

		if err := storage.DeleteProduct(ctx, codigo); err != nil {
			if errors.Is(err, strg.ErrNoProduct) {
				log.Info("product not found", slog.String("codigo", codigo))

				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("product not found"))

				return
			}

			log.Error("failed to delete product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to delete product"))

			return
		}

		if err := cache.DeleteProduct(ctx, codigo); err != nil {
			log.Warn("failed to evict product from cache", sl.Err(err))
		}

		log.Info("product removed", slog.String("codigo", codigo))

		render.JSON(w, r, resp.OK())
	}
}
