package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gabrielmz/pdv-service/internal/config"
	"github.com/gabrielmz/pdv-service/internal/models"
	"github.com/gabrielmz/pdv-service/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Storage struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func New(cfg config.Postgres, log *slog.Logger) (*Storage, error) {
	const fn = "storage.postgres.New"
	log = log.With("fn", fn)

	log.Info("starting storage initialization...")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("%s: can't open database: %v", fn, err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("%s: can't connect to database: %v", fn, err)
	}

	return &Storage{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// saleRow is the flat DB shape of a sale; itens live in a jsonb column.
type saleRow struct {
	ID            int64          `db:"id"`
	Data          time.Time      `db:"data"`
	Total         float64        `db:"total"`
	ValorPago     float64        `db:"valor_pago"`
	Troco         float64        `db:"troco"`
	Itens         []byte         `db:"itens"`
	Protocolo     sql.NullString `db:"protocolo"`
	XMLAutorizado []byte         `db:"xml_autorizado"`
}

func (r *saleRow) toModel() (*models.Sale, error) {
	sale := &models.Sale{
		ID:            r.ID,
		Data:          r.Data,
		Total:         r.Total,
		ValorPago:     r.ValorPago,
		Troco:         r.Troco,
		XMLAutorizado: r.XMLAutorizado,
	}

	if r.Protocolo.Valid {
		sale.Protocolo = &r.Protocolo.String
	}

	if err := json.Unmarshal(r.Itens, &sale.Itens); err != nil {
		return nil, fmt.Errorf("can't unmarshal sale items: %v", err)
	}

	return sale, nil
}

// SaveSale appends a completed sale to the ledger and returns its id. The
// timestamp is assigned here; callers never supply one.
func (s *Storage) SaveSale(ctx context.Context, sale *models.Sale) (int64, error) {
	const fn = "storage.postgres.SaveSale"

	if len(sale.Itens) == 0 {
		return 0, fmt.Errorf("%s: %w", fn, storage.ErrEmptySale)
	}

	itens, err := json.Marshal(sale.Itens)
	if err != nil {
		return 0, fmt.Errorf("%s: can't marshal sale items: %v", fn, err)
	}

	query, args, err := s.sb.
		Insert("sales").
		Columns("data", "total", "valor_pago", "troco", "itens").
		Values(time.Now().UTC(), sale.Total, sale.ValorPago, sale.Troco, itens).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: can't insert sale: %v", fn, err)
	}

	return id, nil
}

// GetSale loads one sale by id, including any fiscal protocol already
// written back by a previous emission.
func (s *Storage) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	const fn = "storage.postgres.GetSale"

	query, args, err := s.sb.
		Select("id", "data", "total", "valor_pago", "troco", "itens", "protocolo", "xml_autorizado").
		From("sales").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var row saleRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoSale
		}

		return nil, fmt.Errorf("%s: can't get sale: %v", fn, err)
	}

	sale, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %v", fn, err)
	}

	return sale, nil
}

// MarkSaleEmitted writes the SEFAZ protocol and the authorized document
// back onto the sale. It refuses to overwrite an existing protocol: one
// sale gets at most one authorized NFC-e.
func (s *Storage) MarkSaleEmitted(ctx context.Context, id int64, protocolo string, xml []byte) error {
	const fn = "storage.postgres.MarkSaleEmitted"

	query, args, err := s.sb.
		Update("sales").
		Set("protocolo", protocolo).
		Set("xml_autorizado", xml).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"protocolo": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: can't update sale: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: can't read affected rows: %v", fn, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: %w", fn, storage.ErrAlreadyEmitted)
	}

	return nil
}

// SaveProduct inserts a catalog row.
func (s *Storage) SaveProduct(ctx context.Context, product *models.Product) error {
	const fn = "storage.postgres.SaveProduct"

	query, args, err := s.sb.
		Insert("products").
		Columns("codigo", "nome", "preco", "ncm", "cfop", "unidade").
		Values(product.Codigo, product.Nome, product.Preco, product.NCM, product.CFOP, product.Unidade).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%s: %w", fn, storage.ErrProductExists)
		}

		return fmt.Errorf("%s: can't insert product: %v", fn, err)
	}

	return nil
}

// GetProduct loads one catalog row by code.
func (s *Storage) GetProduct(ctx context.Context, codigo string) (*models.Product, error) {
	const fn = "storage.postgres.GetProduct"

	query, args, err := s.sb.
		Select("codigo", "nome", "preco", "ncm", "cfop", "unidade").
		From("products").
		Where(sq.Eq{"codigo": codigo}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var product models.Product
	if err := s.db.GetContext(ctx, &product, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoProduct
		}

		return nil, fmt.Errorf("%s: can't get product: %v", fn, err)
	}

	return &product, nil
}

// GetProducts lists the whole catalog ordered by name, the order the POS
// frontend displays it in.
func (s *Storage) GetProducts(ctx context.Context) ([]*models.Product, error) {
	const fn = "storage.postgres.GetProducts"

	query, args, err := s.sb.
		Select("codigo", "nome", "preco", "ncm", "cfop", "unidade").
		From("products").
		OrderBy("nome").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var products []*models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't list products: %v", fn, err)
	}

	return products, nil
}

// DeleteProduct removes a catalog row by code.
func (s *Storage) DeleteProduct(ctx context.Context, codigo string) error {
	const fn = "storage.postgres.DeleteProduct"

	query, args, err := s.sb.
		Delete("products").
		Where(sq.Eq{"codigo": codigo}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: can't delete product: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: can't read affected rows: %v", fn, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: %w", fn, storage.ErrNoProduct)
	}

	return nil
}
