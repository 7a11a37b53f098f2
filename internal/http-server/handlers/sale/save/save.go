package save

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/gabrielmz/pdv-service/internal/models"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type Item struct {
	Codigo     string  `json:"codigo" validate:"required"`
	Nome       string  `json:"nome" validate:"required"`
	Quantidade float64 `json:"quantidade" validate:"required,gt=0"`
	Preco      float64 `json:"preco" validate:"required,gt=0"`
}

type Request struct {
	Total     float64 `json:"total" validate:"required,gt=0"`
	ValorPago float64 `json:"valorPago" validate:"required,gt=0"`
	Troco     float64 `json:"troco" validate:"gte=0"`
	Itens     []Item  `json:"itens" validate:"required,min=1,dive"`
}

type Response struct {
	resp.Response
	ID int64 `json:"id"`
}

type SaleSaver interface {
	SaveSale(ctx context.Context, sale *models.Sale) (int64, error)
}

// New returns the POST /api/sales handler. Recording the sale is the only
// thing this endpoint does; fiscal emission is a separate, later call, so a
// sale is always durable before any emission attempt exists for it.
func New(ctx context.Context, log *slog.Logger, storage SaleSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.sale.save.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode json body", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		log.Info("request body decoded", slog.Any("request", req))

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		sale := &models.Sale{
			Total:     req.Total,
			ValorPago: req.ValorPago,
			Troco:     req.Troco,
		}

		for _, item := range req.Itens {
			sale.Itens = append(sale.Itens, models.SaleItem{
				Codigo:     item.Codigo,
				Nome:       item.Nome,
				Quantidade: item.Quantidade,
				Preco:      item.Preco,
			})
		}

		id, err := storage.SaveSale(ctx, sale)
		if err != nil {
			log.Error("failed to save sale", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to save sale"))

			return
		}

		log.Info("sale recorded", slog.Int64("sale_id", id))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			ID:       id,
		})
	}
}
