//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/boostrace/pkg/db/migrate"
	database "github.com/mpapenbr/boostrace/pkg/db/postgres"
)

// SetupTestDB returns a pool for the migrated database of the test container.
func SetupTestDB() *pgxpool.Pool {
	ctx := context.Background()
	container, err := StartRaceDB(ctx)
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.DBURL(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return migrateAndConnect(dbURL)
}

// SetupExternalTestDB uses the database referenced by TESTDB_URL
func SetupExternalTestDB() *pgxpool.Pool {
	return migrateAndConnect(os.Getenv("TESTDB_URL"))
}

func migrateAndConnect(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDB(dbURL); err != nil {
		log.Fatal(err)
	}
	return database.InitWithURL(dbURL)
}

func ClearRaceTables(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from race_lap_performance")
	pool.Exec(context.Background(), "delete from race_lap")
	pool.Exec(context.Background(), "delete from race")
}

func ClearCarTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from car")
}

func ClearTrackTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from track")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearRaceTables(pool)
	ClearCarTable(pool)
	ClearTrackTable(pool)
}
