package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapainel/datapainel-backend/internal/identity"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/tenant"
	"github.com/datapainel/datapainel-backend/pkg/testutil"
)

func newTestExecutor() *Executor {
	return NewExecutor(NewMetadataRepository(), logger.New("test", "test"))
}

func testCtx() context.Context {
	return tenant.WithCoordinates(context.Background(), &tenant.Coordinates{CompanyName: "ACME"})
}

func TestExecutor_FailureIsolation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM graficos_dashboard").WillReturnRows(
		testutil.MockRows(testutil.ChartMetadataColumns()...).
			AddRow(int64(1), "vendas", "Vendas", "", "SELECT id, total FROM vendas", []byte("{}"), []byte("{}"), []byte("null"), "{}").
			AddRow(int64(2), "sem_template", "Vazio", "", "", []byte("{}"), []byte("{}"), []byte("null"), "{}"),
	)
	mockDB.ExpectQuery("SELECT id, total FROM vendas").WillReturnRows(
		testutil.MockRows("id", "total").
			AddRow(int64(10), []byte("99.90")),
	)
	mockDB.ExpectQuery("FROM dashboard_tables").WillReturnRows(
		testutil.MockRows(testutil.TableMetadataColumns()...),
	)

	conn := mockDB.Conn(t)
	defer conn.Close()

	principal := &identity.Principal{ID: "u1"}
	resp, err := newTestExecutor().Execute(testCtx(), conn, principal, &BatchRequest{
		Graphs: []SlugRequest{{Slug: "vendas"}, {Slug: "sem_template"}, {Slug: "fantasma"}},
		Tables: []SlugRequest{{Slug: "resumo"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ACME", resp.CompanyName)

	// The valid slug runs; invalid ones land in errors without aborting.
	require.Len(t, resp.Graphics, 1)
	assert.Equal(t, "vendas", resp.Graphics[0].Slug)
	require.Len(t, resp.Datasets[1], 1)
	assert.Equal(t, "99.90", resp.Datasets[1][0]["total"])

	assert.Equal(t, "Query template vazio.", resp.Errors["sem_template"])
	assert.Equal(t, "Gráfico não encontrado ou inativo.", resp.Errors["fantasma"])
	assert.Equal(t, "Tabela não encontrada ou inativa.", resp.TableErrors["resumo"])

	assert.NotContains(t, resp.Datasets, int64(2))
	mockDB.ExpectationsWereMet(t)
}

func TestExecutor_RoleGate(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM graficos_dashboard").WillReturnRows(
		testutil.MockRows(testutil.ChartMetadataColumns()...).
			AddRow(int64(3), "faturamento", "Faturamento", "", "SELECT 1", []byte("{}"), []byte("{}"), []byte("null"), "{admin}"),
	)
	mockDB.ExpectQuery("FROM dashboard_tables").WillReturnRows(
		testutil.MockRows(testutil.TableMetadataColumns()...),
	)

	conn := mockDB.Conn(t)
	defer conn.Close()

	// No admin role anywhere in the metadata: the chart must never reach
	// execution, so no query expectation is set for it.
	principal := &identity.Principal{ID: "u1"}
	resp, err := newTestExecutor().Execute(testCtx(), conn, principal, &BatchRequest{
		Graphs: []SlugRequest{{Slug: "faturamento"}},
		Tables: []SlugRequest{{Slug: "ignorada"}},
	})

	require.NoError(t, err)
	assert.Contains(t, resp.Errors["faturamento"], "não possui permissão")
	assert.Empty(t, resp.Graphics)
	assert.Empty(t, resp.Debug)
	mockDB.ExpectationsWereMet(t)
}

func TestExecutor_RoleGateAdmits(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM graficos_dashboard").WillReturnRows(
		testutil.MockRows(testutil.ChartMetadataColumns()...).
			AddRow(int64(3), "faturamento", "Faturamento", "", "SELECT 1 AS um", []byte("{}"), []byte("{}"), []byte("null"), "{admin}"),
	)
	mockDB.ExpectQuery("SELECT 1 AS um").WillReturnRows(
		testutil.MockRows("um").AddRow(int64(1)),
	)
	mockDB.ExpectQuery("FROM dashboard_tables").WillReturnRows(
		testutil.MockRows(testutil.TableMetadataColumns()...),
	)

	conn := mockDB.Conn(t)
	defer conn.Close()

	principal := &identity.Principal{
		ID:          "u1",
		AppMetadata: map[string]interface{}{"role": "admin"},
	}
	resp, err := newTestExecutor().Execute(testCtx(), conn, principal, &BatchRequest{
		Graphs: []SlugRequest{{Slug: "faturamento"}},
		Tables: []SlugRequest{{Slug: "ignorada"}},
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Errors["faturamento"])
	require.Len(t, resp.Graphics, 1)
	assert.Equal(t, 1, resp.Debug[3].RowCount)
	mockDB.ExpectationsWereMet(t)
}

func TestExecutor_ClientsBaselineTable(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM graficos_dashboard").WillReturnRows(
		testutil.MockRows(testutil.ChartMetadataColumns()...),
	)
	mockDB.ExpectQuery("FROM dashboard_tables").WillReturnRows(
		testutil.MockRows(testutil.TableMetadataColumns()...),
	)
	mockDB.ExpectQuery("FROM information_schema.columns").WillReturnRows(
		testutil.MockRows("column_name").AddRow("ultimo_acesso"),
	)
	mockDB.ExpectQuery("SELECT * FROM clientes ORDER BY ultimo_acesso DESC NULLS LAST").WillReturnRows(
		testutil.MockRows("id", "nome", "whatsapp", "paused").
			AddRow(int64(7), "Maria", []byte("+5511999990000"), false),
	)

	conn := mockDB.Conn(t)
	defer conn.Close()

	principal := &identity.Principal{ID: "u1"}
	resp, err := newTestExecutor().Execute(testCtx(), conn, principal, &BatchRequest{})

	require.NoError(t, err)
	require.Len(t, resp.Tables, 1)
	assert.Equal(t, "clientes", resp.Tables[0].Slug)
	assert.Equal(t, "id", resp.Tables[0].PrimaryKey)

	require.Len(t, resp.TableRows[0], 1)
	assert.Equal(t, "Maria", resp.TableRows[0][0]["nome"])
	assert.Equal(t, "+5511999990000", resp.TableRows[0][0]["whatsapp"])
	mockDB.ExpectationsWereMet(t)
}

func TestExecutor_ClientsTableAbsent(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM graficos_dashboard").WillReturnRows(
		testutil.MockRows(testutil.ChartMetadataColumns()...),
	)
	mockDB.ExpectQuery("FROM dashboard_tables").WillReturnRows(
		testutil.MockRows(testutil.TableMetadataColumns()...),
	)
	mockDB.ExpectQuery("FROM information_schema.columns").WillReturnRows(
		testutil.MockRows("column_name"),
	)

	conn := mockDB.Conn(t)
	defer conn.Close()

	principal := &identity.Principal{ID: "u1"}
	resp, err := newTestExecutor().Execute(testCtx(), conn, principal, &BatchRequest{})

	require.NoError(t, err)
	assert.Empty(t, resp.Tables)
	assert.Empty(t, resp.TableErrors)
	mockDB.ExpectationsWereMet(t)
}
