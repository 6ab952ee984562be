package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// sheetRowsDDL keeps every logical table in one relation. Positions are
// renumbered on delete, so the key is checked at statement end.
const sheetRowsDDL = `
CREATE TABLE IF NOT EXISTS sheet_rows (
	table_name TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	cells      JSONB   NOT NULL,
	CONSTRAINT sheet_rows_pkey PRIMARY KEY (table_name, position) DEFERRABLE INITIALLY IMMEDIATE
)`

const renumberSQL = `
UPDATE sheet_rows s
SET position = r.rn
FROM (
	SELECT position, row_number() OVER (ORDER BY position) AS rn
	FROM sheet_rows
	WHERE table_name = $1
) r
WHERE s.table_name = $1 AND s.position = r.position AND s.position <> r.rn`

// PostgresBackend stores rows as JSONB cell arrays keyed by table and position.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates the backing relation if needed.
func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	if _, err := pool.Exec(ctx, sheetRowsDDL); err != nil {
		return nil, errors.Wrap(err, "create sheet_rows")
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) EnsureTable(ctx context.Context, table string, header []string) error {
	return b.inTx(ctx, table, func(tx pgx.Tx) error {
		existing, err := readRow(ctx, tx, table, 1)
		if err == nil {
			if !headersEqual(header, existing) {
				return errors.Wrapf(ErrHeaderMismatch, "table %q", table)
			}
			return nil
		}
		if !errors.Is(err, ErrRowOutOfRange) {
			return err
		}
		cells := make([]any, len(header))
		for i, c := range header {
			cells[i] = c
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO sheet_rows (table_name, position, cells) VALUES ($1, 1, $2)`,
			table, cells)
		return errors.Wrapf(err, "create table %q", table)
	})
}

func (b *PostgresBackend) ReadAll(ctx context.Context, table string) ([]Row, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT cells FROM sheet_rows WHERE table_name = $1 ORDER BY position`, table)
	if err != nil {
		return nil, errors.Wrapf(err, "read table %q", table)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var cells []any
		if err := rows.Scan(&cells); err != nil {
			return nil, errors.Wrapf(err, "scan table %q", table)
		}
		out = append(out, Row(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read table %q", table)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	return out, nil
}

func (b *PostgresBackend) ReadRow(ctx context.Context, table string, position, width int) (Row, error) {
	row, err := readRow(ctx, b.pool, table, position)
	if err != nil {
		return nil, err
	}
	return padRow(row, width), nil
}

func (b *PostgresBackend) WriteRow(ctx context.Context, table string, position int, values Row) error {
	return b.inTx(ctx, table, func(tx pgx.Tx) error {
		header, err := readRow(ctx, tx, table, 1)
		if err != nil {
			return err
		}
		current, err := readRow(ctx, tx, table, position)
		if err != nil {
			return err
		}
		row := padRow(current, len(header))
		if len(values) > len(row) {
			return errors.Wrapf(ErrWidthMismatch, "table %q: %d values for %d columns", table, len(values), len(row))
		}
		copy(row, values)
		_, err = tx.Exec(ctx,
			`UPDATE sheet_rows SET cells = $3 WHERE table_name = $1 AND position = $2`,
			table, position, []any(row))
		return errors.Wrapf(err, "write row %d of %q", position, table)
	})
}

func (b *PostgresBackend) Append(ctx context.Context, table string, row Row) error {
	return b.inTx(ctx, table, func(tx pgx.Tx) error {
		header, err := readRow(ctx, tx, table, 1)
		if err != nil {
			if errors.Is(err, ErrRowOutOfRange) {
				return errors.Wrapf(ErrTableNotFound, "table %q", table)
			}
			return err
		}
		if len(row) != len(header) {
			return errors.Wrapf(ErrWidthMismatch, "table %q: got %d cells, want %d", table, len(row), len(header))
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sheet_rows (table_name, position, cells)
			SELECT $1, COALESCE(MAX(position), 0) + 1, $2
			FROM sheet_rows WHERE table_name = $1`,
			table, []any(row))
		return errors.Wrapf(err, "append to %q", table)
	})
}

func (b *PostgresBackend) DeleteRow(ctx context.Context, table string, position int) error {
	if position < 2 {
		return errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	return b.inTx(ctx, table, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM sheet_rows WHERE table_name = $1 AND position = $2`, table, position)
		if err != nil {
			return errors.Wrapf(err, "delete row %d of %q", position, table)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
		}
		_, err = tx.Exec(ctx,
			`UPDATE sheet_rows SET position = position - 1 WHERE table_name = $1 AND position > $2`,
			table, position)
		return errors.Wrapf(err, "shift rows of %q", table)
	})
}

func (b *PostgresBackend) DeleteRowsWhere(ctx context.Context, table string, columnIndex int, value string) (int, error) {
	var deleted int
	err := b.inTx(ctx, table, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM sheet_rows
			WHERE table_name = $1 AND position > 1 AND cells ->> $2::int = $3`,
			table, columnIndex, value)
		if err != nil {
			return errors.Wrapf(err, "delete rows of %q", table)
		}
		deleted = int(tag.RowsAffected())
		if deleted == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, renumberSQL, table)
		return errors.Wrapf(err, "renumber rows of %q", table)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (b *PostgresBackend) Identity(table string) string {
	return "postgres:" + table
}

// inTx runs fn in a transaction holding a per-table advisory lock.
func (b *PostgresBackend) inTx(ctx context.Context, table string, fn func(pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table); err != nil {
		return errors.Wrapf(err, "lock table %q", table)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readRow(ctx context.Context, q querier, table string, position int) (Row, error) {
	var cells []any
	err := q.QueryRow(ctx,
		`SELECT cells FROM sheet_rows WHERE table_name = $1 AND position = $2`,
		table, position).Scan(&cells)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
		}
		return nil, errors.Wrapf(err, "read row %d of %q", position, table)
	}
	return Row(cells), nil
}
