package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

var productColumnNames = []string{
	"id", "sku", "primary_product_number", "name", "description",
	"power_w", "voltage_v", "luminous_flux_lm", "color_temperature", "color_rendering",
	"lifetime_hours", "ip_rating", "application_area", "certifications", "source_document", "updated_at",
}

func newProductRepoWithMock(t *testing.T) (*ProductRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewProductRepository(db, 10), mock, func() { _ = db.Close() }
}

func productRow(id int64, sku, name string, power driver.Value) []driver.Value {
	return []driver.Value{
		id, sku, "", name, "", power, nil, nil, "3000K", "", 2000.0, "IP20", "stage", []byte(`["CE"]`), "xbo.pdf",
		time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFilterSearchEmptyFilterSkipsQuery(t *testing.T) {
	repo, mock, done := newProductRepoWithMock(t)
	defer done()

	results, err := repo.FilterSearch(context.Background(), domain.AttributeFilter{})
	if err != nil {
		t.Fatalf("FilterSearch() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFilterSearchBuildsConjunctiveQuery(t *testing.T) {
	repo, mock, done := newProductRepoWithMock(t)
	defer done()

	minPower := 100.0
	rows := sqlmock.NewRows(productColumnNames).AddRow(productRow(4, "4008321", "XBO 3000 W/HS", 3000.0)...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE power_w >= $1 AND application_area ILIKE $2 AND certifications @> $3::jsonb")).
		WithArgs(minPower, "%stage%", `["CE"]`, 10).
		WillReturnRows(rows)

	results, err := repo.FilterSearch(context.Background(), domain.AttributeFilter{
		MinPower:        &minPower,
		ApplicationArea: "stage",
		Certifications:  []string{"ce"},
	})
	if err != nil {
		t.Fatalf("FilterSearch() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.ProductID != 4 || res.SKU != "4008321" || !res.FilterMatch {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Attributes["power_w"] != 3000.0 || res.SourceDocument != "xbo.pdf" {
		t.Fatalf("unexpected attributes %+v", res)
	}
	if !strings.Contains(res.Text, "XBO 3000 W/HS") {
		t.Fatalf("expected product summary text, got %q", res.Text)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildFilterClauseEscapesLikePatterns(t *testing.T) {
	where, args, err := buildFilterClause(domain.AttributeFilter{ColorTemperature: "50%_k"})
	if err != nil {
		t.Fatalf("buildFilterClause() error = %v", err)
	}
	if where != "color_temperature ILIKE $1" {
		t.Fatalf("unexpected clause %q", where)
	}
	if args[0] != `%50\%\_k%` {
		t.Fatalf("expected escaped pattern, got %v", args[0])
	}
}

func TestExactSearchRanksIdentifierMatches(t *testing.T) {
	repo, mock, done := newProductRepoWithMock(t)
	defer done()

	cols := append(append([]string{}, productColumnNames...), "match_rank")
	rows := sqlmock.NewRows(cols).
		AddRow(append(productRow(1, "4008321", "XBO 3000 W/HS", nil), int64(0))...).
		AddRow(append(productRow(2, "4008321-B", "XBO 3000 W/HS OFR", nil), int64(2))...)
	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("4008321", "%4008321%", 10).
		WillReturnRows(rows)

	results, err := repo.ExactSearch(context.Background(), " 4008321 ")
	if err != nil {
		t.Fatalf("ExactSearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score != scoreExactSKU || results[1].Score != scorePartialMatch {
		t.Fatalf("unexpected scores %v/%v", results[0].Score, results[1].Score)
	}
	if results[0].Attributes["power_w"] != nil {
		t.Fatalf("expected NULL power to be omitted, got %v", results[0].Attributes["power_w"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertProductReturnsID(t *testing.T) {
	repo, mock, done := newProductRepoWithMock(t)
	defer done()

	power := 3000.0
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (sku) DO UPDATE SET")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	id, err := repo.UpsertProduct(context.Background(), &domain.Product{
		SKU: "4008321", Name: "XBO 3000 W/HS", PowerW: &power, SourceDocument: "xbo.pdf",
	})
	if err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	if id != 17 {
		t.Fatalf("expected id 17, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertProductRequiresSKU(t *testing.T) {
	repo, _, done := newProductRepoWithMock(t)
	defer done()

	if _, err := repo.UpsertProduct(context.Background(), &domain.Product{Name: "x"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGetProductByIDNotFound(t *testing.T) {
	repo, mock, done := newProductRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM products WHERE id").WithArgs(int64(5)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProductByID(context.Background(), 5)
	if !domain.IsKind(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
