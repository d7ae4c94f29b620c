// Package pg connects to PostgreSQL through a pgx pool and applies goose
// migrations embedded in the binary.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, billing.Migrations, "migrations", pg.MigrateUp, log); err != nil {
//	    return err
//	}
//
// Healthcheck adapts the pool to a readiness probe.
package pg
