package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/productlab/catalog-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const productColumns = `product_id, name, description,
	cost_price::TEXT, selling_price::TEXT, category,
	stock_available, units_sold, customer_rating,
	demand_forecast, optimized_price::TEXT`

const insertProduct = `INSERT INTO products (product_id, name, description, cost_price, selling_price,
	category, stock_available, units_sold, customer_rating, demand_forecast, optimized_price)
 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10, $11::NUMERIC)`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertProductRow(ctx context.Context, db execer, p *model.Product) error {
	_, err := db.Exec(ctx, insertProduct,
		p.ID, p.Name, p.Description,
		p.CostPrice.String(), p.SellingPrice.String(), p.Category,
		p.StockAvailable, p.UnitsSold, p.CustomerRating,
		p.DemandForecast, optionalDecimal(p.OptimizedPrice),
	)
	return translate(err, "product "+p.ID)
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	return insertProductRow(ctx, s.pool, p)
}

func (s *PostgresStore) BulkCreateProducts(ctx context.Context, products []model.Product) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i := range products {
		if err := insertProductRow(ctx, tx, &products[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, translate(err, "product "+id)
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	query, args := buildListQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// buildListQuery renders the filter as a parameterized SELECT. Ordering
// terms are checked against orderColumns; unknown terms are skipped.
func buildListQuery(f model.ProductFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}
	if f.CustomerRating != nil {
		where = append(where, "customer_rating = "+arg(*f.CustomerRating))
	}
	if f.SellingPrice != nil {
		where = append(where, "selling_price = "+arg(f.SellingPrice.String())+"::NUMERIC")
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if len(f.IDs) > 0 {
		where = append(where, "product_id = ANY("+arg(f.IDs)+")")
	}

	var b strings.Builder
	b.WriteString("SELECT " + productColumns + " FROM products")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	var order []string
	for _, term := range f.Ordering {
		col, ok := orderColumns[trimDesc(term)]
		if !ok {
			continue
		}
		if strings.HasPrefix(term, "-") {
			col += " DESC"
		}
		order = append(order, col)
	}
	order = append(order, "name", "product_id")
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))

	return b.String(), args
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, description = $3,
		     cost_price = $4::NUMERIC, selling_price = $5::NUMERIC,
		     category = $6, stock_available = $7, units_sold = $8,
		     customer_rating = $9, demand_forecast = $10, optimized_price = $11::NUMERIC
		 WHERE product_id = $1`,
		p.ID, p.Name, p.Description,
		p.CostPrice.String(), p.SellingPrice.String(),
		p.Category, p.StockAvailable, p.UnitsSold,
		p.CustomerRating, p.DemandForecast, optionalDecimal(p.OptimizedPrice),
	)
	if err != nil {
		return translate(err, "product "+p.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, p.ID)
	}
	return nil
}

func (s *PostgresStore) SetPricing(ctx context.Context, id string, demandForecast int64, optimizedPrice decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET demand_forecast = $2, optimized_price = $3::NUMERIC
		 WHERE product_id = $1`,
		id, demandForecast, optimizedPrice.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	// product_sales rows go with the product via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE product_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) UpsertSale(ctx context.Context, obs *model.SalesObservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_sales (product_id, date, units_sold, selling_price)
		 VALUES ($1, $2, $3, $4::NUMERIC)
		 ON CONFLICT (product_id, date)
		 DO UPDATE SET units_sold = EXCLUDED.units_sold, selling_price = EXCLUDED.selling_price`,
		obs.ProductID, model.Day(obs.Date), obs.UnitsSold, obs.SellingPrice.String(),
	)
	return translate(err, "product "+obs.ProductID)
}

func (s *PostgresStore) ListSales(ctx context.Context, productID string) ([]model.SalesObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, date, units_sold, selling_price::TEXT
		 FROM product_sales WHERE product_id = $1 ORDER BY date`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []model.SalesObservation
	for rows.Next() {
		var obs model.SalesObservation
		var priceS string
		if err := rows.Scan(&obs.ProductID, &obs.Date, &obs.UnitsSold, &priceS); err != nil {
			return nil, err
		}
		obs.Date = model.Day(obs.Date)
		obs.SellingPrice, _ = decimal.NewFromString(priceS)
		sales = append(sales, obs)
	}
	return sales, rows.Err()
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	var costS, priceS string
	var optimizedS *string

	if err := row.Scan(&p.ID, &p.Name, &p.Description,
		&costS, &priceS, &p.Category,
		&p.StockAvailable, &p.UnitsSold, &p.CustomerRating,
		&p.DemandForecast, &optimizedS); err != nil {
		return nil, err
	}

	p.CostPrice, _ = decimal.NewFromString(costS)
	p.SellingPrice, _ = decimal.NewFromString(priceS)
	if optimizedS != nil {
		op, err := decimal.NewFromString(*optimizedS)
		if err == nil {
			p.OptimizedPrice = &op
		}
	}
	return &p, nil
}

func optionalDecimal(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

// translate maps driver errors onto the store sentinels.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, what)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		}
	}
	return err
}
