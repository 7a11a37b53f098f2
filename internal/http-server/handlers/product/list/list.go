package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gabrielmz/pdv-service/internal/models"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type Response struct {
	resp.Response
	Products []*models.Product `json:"products"`
}

type ProductLister interface {
	GetProducts(ctx context.Context) ([]*models.Product, error)
}

// New returns the GET /api/products handler. The listing always comes from
// Postgres: the frontend needs the full catalog in name order, which the
// keyed cache can't provide.
func New(ctx context.Context, log *slog.Logger, storage ProductLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.product.list.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		products, err := storage.GetProducts(ctx)
		if err != nil {
			log.Error("failed to list products", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to list products"))

			return
		}

		log.Info("products listed", slog.Int("count", len(products)))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Products: products,
		})
	}
}
