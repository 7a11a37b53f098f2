// Package emit exposes the fiscal emission endpoint. It owns the contract
// between the orchestrator's outcome taxonomy and HTTP: 201 for an
// authorized document, 400 for a regulator rejection, 409 for a sale that
// already carries a protocol, 500 for every technical failure.
package emit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/gabrielmz/pdv-service/internal/fiscal"
	"github.com/gabrielmz/pdv-service/internal/models"
	strg "github.com/gabrielmz/pdv-service/internal/storage"
	resp "github.com/gabrielmz/pdv-service/lib/api/response"
	"github.com/gabrielmz/pdv-service/lib/logger/sl"
)

type Request struct {
	SaleID int64 `json:"saleId" validate:"required,gt=0"`
}

type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Protocolo string `json:"protocolo,omitempty"`
	XML       string `json:"xml,omitempty"`
	Detalhes  string `json:"detalhes,omitempty"`
}

type SaleStorage interface {
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
	MarkSaleEmitted(ctx context.Context, id int64, protocolo string, xml []byte) error
}

type Emitter interface {
	Emit(ctx context.Context, sale *models.Sale) fiscal.Outcome
}

type OutcomePublisher interface {
	PublishOutcome(saleID int64, out fiscal.Outcome)
}

// New returns the POST /api/emissions handler.
//
// The sale must already exist in the ledger; a sale that already carries a
// protocol is refused with 409 before any regulator contact, so the same
// sale can never be emitted twice. On authorization the protocol is
// persisted against the sale before the response goes out.
func New(
	ctx context.Context,
	log *slog.Logger,
	storage SaleStorage,
	emitter Emitter,
	publisher OutcomePublisher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.emission.emit.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode json body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		log = log.With(slog.Int64("sale_id", req.SaleID))

		sale, err := storage.GetSale(ctx, req.SaleID)
		if errors.Is(err, strg.ErrNoSale) {
			log.Info("sale not found")

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("sale not found"))

			return
		}

		if err != nil {
			log.Error("failed to load sale", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Response{
				Status:   "erro",
				Message:  "Falha ao carregar a venda.",
				Detalhes: "storage unavailable",
			})

			return
		}

		if sale.Protocolo != nil {
			log.Info("sale already emitted", slog.String("protocolo", *sale.Protocolo))

			render.Status(r, http.StatusConflict)
			render.JSON(w, r, Response{
				Status:    "autorizada",
				Message:   "NFC-e já emitida para esta venda.",
				Protocolo: *sale.Protocolo,
			})

			return
		}

		out := emitter.Emit(r.Context(), sale)

		if publisher != nil {
			publisher.PublishOutcome(sale.ID, out)
		}

		switch out.Status {
		case fiscal.StatusAuthorized:
			if err := storage.MarkSaleEmitted(ctx, sale.ID, out.Protocolo, out.XML); err != nil {
				// The document is authorized either way; losing the write
				// must not hide the protocol from the caller.
				log.Error("failed to persist protocol", sl.Err(err))
			}

			render.Status(r, http.StatusCreated)
			render.JSON(w, r, Response{
				Status:    "autorizada",
				Message:   "NFC-e emitida com sucesso!",
				Protocolo: out.Protocolo,
				XML:       string(out.XML),
			})

		case fiscal.StatusRejected:
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, Response{
				Status:   "rejeitada",
				Message:  "NFC-e foi rejeitada pela SEFAZ.",
				Detalhes: out.Motivo,
			})

		default:
			detalhes := "could not reach fiscal authority, please retry"
			if errors.Is(out.Err, fiscal.ErrValidation) || errors.Is(out.Err, fiscal.ErrCredential) {
				detalhes = out.Err.Error()
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Response{
				Status:   "erro",
				Message:  "Falha crítica ao tentar emitir NFC-e.",
				Detalhes: detalhes,
			})
		}
	}
}
