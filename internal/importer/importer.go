// Package importer bulk-loads products from CSV or XLSX files.
//
// The first row is a header. Columns are matched by name, case-insensitively;
// product_id is ignored and a fresh id is assigned to every row. Rows are
// validated with the same rules as the HTTP API and created in one
// transaction, so a single bad row loads nothing.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/productlab/catalog-engine/internal/catalog"
	"github.com/productlab/catalog-engine/internal/model"
	"github.com/productlab/catalog-engine/internal/store"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("importer: unsupported file format")

	// ErrNoRows is returned when a file has no data rows under its header.
	ErrNoRows = errors.New("importer: file needs a header row and at least one data row")

	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("importer: missing required column")
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var requiredColumns = []string{"name", "cost_price", "selling_price"}

// FormatFromName picks a format from a file extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// ReadRows returns every row of the file, header included. For XLSX the
// first sheet is read.
func ReadRows(r io.Reader, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		return rows, nil

	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read xlsx rows: %w", err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// RowError reports a data row that failed to parse or validate. Row is the
// 1-based line in the file, counting the header.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse converts header-led rows into products. Blank lines are skipped.
func Parse(rows [][]string, newID func() string) ([]model.Product, error) {
	if len(rows) < 2 {
		return nil, ErrNoRows
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if missing := lo.Filter(requiredColumns, func(c string, _ int) bool {
		_, ok := index[c]
		return !ok
	}); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	var products []model.Product
	for i, row := range rows[1:] {
		if lo.EveryBy(row, func(cell string) bool { return strings.TrimSpace(cell) == "" }) {
			continue
		}
		in, err := parseRow(row, index)
		if err == nil {
			err = in.Validate()
		}
		if err != nil {
			return nil, &RowError{Row: i + 2, Err: err}
		}
		products = append(products, in.NewProduct(newID()))
	}
	if len(products) == 0 {
		return nil, ErrNoRows
	}
	return products, nil
}

func parseRow(row []string, index map[string]int) (*catalog.ProductInput, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var in catalog.ProductInput
	var err error
	in.Name = cell("name")
	in.Description = cell("description")
	in.Category = cell("category")

	if in.CostPrice, err = parseDecimal("cost_price", cell("cost_price")); err != nil {
		return nil, err
	}
	if in.SellingPrice, err = parseDecimal("selling_price", cell("selling_price")); err != nil {
		return nil, err
	}
	if raw := cell("optimized_price"); raw != "" {
		op, err := parseDecimal("optimized_price", raw)
		if err != nil {
			return nil, err
		}
		in.OptimizedPrice = &op
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"stock_available", &in.StockAvailable},
		{"units_sold", &in.UnitsSold},
		{"demand_forecast", &in.DemandForecast},
	}
	for _, f := range ints {
		if *f.dst, err = parseInt(f.name, cell(f.name)); err != nil {
			return nil, err
		}
	}
	rating, err := parseInt("customer_rating", cell("customer_rating"))
	if err != nil {
		return nil, err
	}
	in.CustomerRating = int(rating)

	return &in, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a number", field, raw)
	}
	return v, nil
}

func parseInt(field, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", field, raw)
	}
	return v, nil
}

// Load reads the named file's rows from r and bulk-creates them.
func Load(ctx context.Context, st store.Store, r io.Reader, name string) (int, error) {
	format, err := FormatFromName(name)
	if err != nil {
		return 0, err
	}
	rows, err := ReadRows(r, format)
	if err != nil {
		return 0, err
	}
	products, err := Parse(rows, func() string { return uuid.New().String() })
	if err != nil {
		return 0, err
	}
	if err := st.BulkCreateProducts(ctx, products); err != nil {
		return 0, fmt.Errorf("bulk create: %w", err)
	}

	slog.Info("products imported", "file", name, "format", format, "count", len(products))
	return len(products), nil
}
