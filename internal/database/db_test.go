package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinistocks/pipeline/internal/database"
	"github.com/trinistocks/pipeline/internal/domain"
	testingpkg "github.com/trinistocks/pipeline/internal/testing"
)

func TestDialectFor(t *testing.T) {
	d, err := database.DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, database.SQLite, d)

	d, err = database.DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, database.MySQL, d)

	_, err = database.DialectFor("postgres")
	assert.Error(t, err)
}

func TestUpsertSQL_SQLite(t *testing.T) {
	got := database.SQLite.UpsertSQL(domain.TableDividends)
	assert.Equal(t,
		`INSERT INTO "historical_dividend_info" ("symbol_id", "record_date", "dividend_amount", "currency") `+
			`VALUES (:symbol_id, :record_date, :dividend_amount, :currency) `+
			`ON CONFLICT ("symbol_id", "record_date") DO UPDATE SET "dividend_amount" = excluded."dividend_amount", "currency" = excluded."currency"`,
		got)
}

func TestUpsertSQL_MySQL(t *testing.T) {
	got := database.MySQL.UpsertSQL(domain.TableDividends)
	assert.Contains(t, got, "INSERT INTO `historical_dividend_info`")
	assert.Contains(t, got, " AS new ON DUPLICATE KEY UPDATE `dividend_amount` = new.`dividend_amount`, `currency` = new.`currency`")
}

func TestUpsertSQL_KeyOnlyTable(t *testing.T) {
	spec := domain.TableSpec{Name: "tags", Key: []string{"tag"}, Columns: []string{"tag"}}
	assert.Contains(t, database.SQLite.UpsertSQL(spec), `ON CONFLICT ("tag") DO NOTHING`)
	assert.Contains(t, database.MySQL.UpsertSQL(spec), "UPDATE `tag` = new.`tag`")
}

func TestBatchSize(t *testing.T) {
	n := database.BatchSize(domain.TableDailyStockSummary)
	assert.Equal(t, database.MaxBindParams/len(domain.TableDailyStockSummary.Columns), n)
	assert.LessOrEqual(t, n*len(domain.TableDailyStockSummary.Columns), database.MaxBindParams)
}

func TestMigrate_CreatesEveryTable(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "schema")

	tables := []domain.TableSpec{
		domain.TableListedEquities, domain.TableDailyStockSummary, domain.TableMarketSummary,
		domain.TableDividends, domain.TableNews, domain.TableAnnualReports, domain.TableQuarterlyReports,
		domain.TableFundamentalRatios, domain.TableDividendYield, domain.TableDividendYieldSummary,
		domain.TableTechnicalSummary, domain.TablePortfolioSummary, domain.TablePortfolioSectors,
		domain.TableSimulatorSummary, domain.TableSimulatorSectors, domain.TableSimulatorStandings,
		domain.TableSimulatorGameStatus, domain.TablePahoReports, domain.TableWorldwideCases,
		domain.TableCovidDaily, domain.TableBrokerQuotes, domain.TableMarketClosedDays,
	}
	for _, table := range tables {
		assert.Equal(t, 0, testingpkg.CountRows(t, db, table.Name), table.Name)
	}

	// a second run is a no-op
	require.NoError(t, db.Migrate())
}

func TestNew_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	db, err := database.New(database.Config{Driver: "sqlite", DSN: path, Name: "file"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, database.SQLite, db.Dialect())
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestWithTransaction_RollsBack(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "tx")

	err := database.WithTransaction(context.Background(), db.Conn(), func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO historical_market_summary (date, index_name) VALUES ('2020-01-06', 'SME')`); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, testingpkg.CountRows(t, db, "historical_market_summary"))
}
