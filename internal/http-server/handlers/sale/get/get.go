package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gabrielmz/pdv-service/internal/models"
	strg "github.com/gabrielmz/pdv-service/internal/storage"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type Response struct {
	resp.Response
	Sale *models.Sale `json:"sale"`
}

type SaleGetter interface {
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
}

// New returns the GET /api/sales/{id} handler.
func New(ctx context.Context, log *slog.Logger, storage SaleGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.sale.get.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("invalid sale id"))

			return
		}

		sale, err := storage.GetSale(ctx, id)
		if errors.Is(err, strg.ErrNoSale) {
			log.Info("sale not found", slog.Int64("sale_id", id))

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("sale not found"))

			return
		}

		if err != nil {
			log.Error("failed to get sale", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to get sale"))

			return
		}

		log.Info("got sale successfully", slog.Int64("sale_id", id))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Sale:     sale,
		})
	}
}
