package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

const (
	defaultSearchLimit = 50

	scoreExactSKU     = 1.0
	scoreExactPrimary = 0.95
	scorePartialMatch = 0.8
	scoreFilterMatch  = 1.0
)

const productColumns = `id, sku, COALESCE(primary_product_number, ''), name, COALESCE(description, ''),
	power_w, voltage_v, luminous_flux_lm, COALESCE(color_temperature, ''), COALESCE(color_rendering, ''),
	lifetime_hours, COALESCE(ip_rating, ''), COALESCE(application_area, ''), certifications, source_document, updated_at`

// ProductRepository is the relational attribute store for product records.
type ProductRepository struct {
	db    *sql.DB
	limit int
}

func NewProductRepository(db *sql.DB, limit int) *ProductRepository {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &ProductRepository{db: db, limit: limit}
}

// UpsertProduct inserts or replaces the product with the same SKU and
// returns its id.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p *domain.Product) (int64, error) {
	if strings.TrimSpace(p.SKU) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "upsert product", errors.New("sku is required"))
	}
	certs := p.Certifications
	if certs == nil {
		certs = []string{}
	}
	certsJSON, err := json.Marshal(certs)
	if err != nil {
		return 0, fmt.Errorf("marshal certifications: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
INSERT INTO products (
	sku, primary_product_number, name, description, power_w, voltage_v, luminous_flux_lm,
	color_temperature, color_rendering, lifetime_hours, ip_rating, application_area,
	certifications, source_document, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (sku) DO UPDATE SET
	primary_product_number = EXCLUDED.primary_product_number,
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	power_w = EXCLUDED.power_w,
	voltage_v = EXCLUDED.voltage_v,
	luminous_flux_lm = EXCLUDED.luminous_flux_lm,
	color_temperature = EXCLUDED.color_temperature,
	color_rendering = EXCLUDED.color_rendering,
	lifetime_hours = EXCLUDED.lifetime_hours,
	ip_rating = EXCLUDED.ip_rating,
	application_area = EXCLUDED.application_area,
	certifications = EXCLUDED.certifications,
	source_document = EXCLUDED.source_document,
	updated_at = EXCLUDED.updated_at
RETURNING id
`,
		p.SKU, nullString(p.PrimaryProductNumber), p.Name, nullString(p.Description),
		nullFloat(p.PowerW), nullFloat(p.VoltageV), nullFloat(p.LuminousFluxLm),
		nullString(p.ColorTemperatureK), nullString(p.ColorRendering), nullFloat(p.LifetimeHours),
		nullString(p.IPRating), nullString(p.ApplicationArea), certsJSON, p.SourceDocument, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProductNotFound, "get product", fmt.Errorf("id=%d", id))
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// ExactSearch matches identifiers exactly first, then by substring over
// SKU, primary product number and name.
func (r *ProductRepository) ExactSearch(ctx context.Context, text string) ([]domain.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.SearchResult{}, nil
	}
	pattern := "%" + escapeLike(text) + "%"

	rows, err := r.db.QueryContext(ctx, `
SELECT `+productColumns+`,
	CASE
		WHEN lower(sku) = lower($1) THEN 0
		WHEN lower(primary_product_number) = lower($1) THEN 1
		ELSE 2
	END AS match_rank
FROM products
WHERE lower(sku) = lower($1)
	OR lower(primary_product_number) = lower($1)
	OR sku ILIKE $2
	OR primary_product_number ILIKE $2
	OR name ILIKE $2
ORDER BY match_rank, name, sku
LIMIT $3
`, text, pattern, r.limit)
	if err != nil {
		return nil, fmt.Errorf("exact search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0)
	for rows.Next() {
		var rank int
		p, err := scanProduct(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("scan exact match: %w", err)
		}
		res := productResult(*p, scorePartialMatch)
		switch rank {
		case 0:
			res.Score = scoreExactSKU
		case 1:
			res.Score = scoreExactPrimary
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exact matches: %w", err)
	}
	return out, nil
}

// FilterSearch returns products satisfying every set filter field. An
// empty filter returns no rows without querying.
func (r *ProductRepository) FilterSearch(ctx context.Context, filter domain.AttributeFilter) ([]domain.SearchResult, error) {
	where, args, err := buildFilterClause(filter)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return []domain.SearchResult{}, nil
	}
	args = append(args, r.limit)

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+`
FROM products
WHERE `+where+`
ORDER BY name, sku
LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("filter search: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filter match: %w", err)
		}
		res := productResult(*p, scoreFilterMatch)
		res.FilterMatch = true
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter matches: %w", err)
	}
	return out, nil
}

func buildFilterClause(filter domain.AttributeFilter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.MinPower != nil {
		add("power_w >= $%d", *filter.MinPower)
	}
	if filter.MaxPower != nil {
		add("power_w <= $%d", *filter.MaxPower)
	}
	if filter.MinLifetimeHours != nil {
		add("lifetime_hours >= $%d", *filter.MinLifetimeHours)
	}
	if filter.MaxLifetimeHours != nil {
		add("lifetime_hours <= $%d", *filter.MaxLifetimeHours)
	}
	if v := strings.TrimSpace(filter.ColorTemperature); v != "" {
		add("color_temperature ILIKE $%d", "%"+escapeLike(v)+"%")
	}
	if v := strings.TrimSpace(filter.ApplicationArea); v != "" {
		add("application_area ILIKE $%d", "%"+escapeLike(v)+"%")
	}
	if v := strings.TrimSpace(filter.IPRating); v != "" {
		add("upper(ip_rating) = upper($%d)", v)
	}
	if len(filter.Certifications) > 0 {
		certs := make([]string, 0, len(filter.Certifications))
		for _, c := range filter.Certifications {
			certs = append(certs, strings.ToUpper(strings.TrimSpace(c)))
		}
		raw, err := json.Marshal(certs)
		if err != nil {
			return "", nil, fmt.Errorf("marshal certification filter: %w", err)
		}
		add("certifications @> $%d::jsonb", string(raw))
	}
	return strings.Join(conds, " AND "), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, extra ...any) (*domain.Product, error) {
	var (
		p                         domain.Product
		power, voltage, flux, lif sql.NullFloat64
		certsRaw                  []byte
	)
	dest := []any{
		&p.ID, &p.SKU, &p.PrimaryProductNumber, &p.Name, &p.Description,
		&power, &voltage, &flux, &p.ColorTemperatureK, &p.ColorRendering,
		&lif, &p.IPRating, &p.ApplicationArea, &certsRaw, &p.SourceDocument, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.PowerW = floatPtr(power)
	p.VoltageV = floatPtr(voltage)
	p.LuminousFluxLm = floatPtr(flux)
	p.LifetimeHours = floatPtr(lif)
	if len(certsRaw) > 0 {
		if err := json.Unmarshal(certsRaw, &p.Certifications); err != nil {
			return nil, fmt.Errorf("unmarshal certifications: %w", err)
		}
	}
	return &p, nil
}

func productResult(p domain.Product, score float64) domain.SearchResult {
	return domain.SearchResult{
		ProductID:      p.ID,
		SKU:            p.SKU,
		ProductName:    p.Name,
		Score:          score,
		Text:           p.Summary(),
		Attributes:     p.Attributes(),
		SourceDocument: p.SourceDocument,
	}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
