package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/gabrielmz/pdv-service/internal/models"
	strg "github.com/gabrielmz/pdv-service/internal/storage"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type Request struct {
	Codigo string  `json:"codigo" validate:"required"`
	Nome   string  `json:"nome" validate:"required"`
	Preco  float64 `json:"preco" validate:"required,gt=0"`

	NCM     *string `json:"ncm,omitempty"`
	CFOP    *string `json:"cfop,omitempty"`
	Unidade *string `json:"unidade,omitempty"`
}

type ProductSaver interface {
	SaveProduct(ctx context.Context, product *models.Product) error
}

// New returns the POST /api/products handler. The product is written to
// Postgres first and then mirrored into the cache; a cache failure is
// logged but does not fail the request.
func New(ctx context.Context, log *slog.Logger, storage ProductSaver, cache ProductSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.product.save.New"

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

		product := &models.Product{
			Codigo:  req.Codigo,
			Nome:    req.Nome,
			Preco:   req.Preco,
			NCM:     req.NCM,
			CFOP:    req.CFOP,
			Unidade: req.Unidade,
		}

		if err := storage.SaveProduct(ctx, product); err != nil {
			if errors.Is(err, strg.ErrProductExists) {
				log.Info("product already exists", slog.String("codigo", req.Codigo))

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("product already exists"))

				return
			}

			log.Error("failed to save product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to save product"))

			return
		}

		if err := cache.SaveProduct(ctx, product); err != nil {
			log.Warn("failed to cache product", sl.Err(err))
		}

		log.Info("product saved", slog.String("codigo", req.Codigo))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp.OK())
	}
}
