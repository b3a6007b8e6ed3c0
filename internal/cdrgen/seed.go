package cdrgen

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var tableRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const createTable = `CREATE TABLE IF NOT EXISTS %s (
	cdr_id INTEGER PRIMARY KEY,
	calldate DATETIME NOT NULL,
	clid TEXT, source TEXT, src TEXT, dst TEXT, destination TEXT,
	dcontext TEXT, channel TEXT, dstchannel TEXT, lastapp TEXT, lastdata TEXT,
	duration INTEGER, billsec INTEGER, disposition TEXT, amaflags INTEGER
)`

const insertCall = `INSERT INTO %s
	(cdr_id, calldate, clid, source, src, dst, destination, dcontext, channel, dstchannel,
	 lastapp, lastdata, duration, billsec, disposition, amaflags)
	VALUES (?, ?, ?, ?, ?, ?, ?, 'from-internal', ?, ?, 'Dial', ?, ?, ?, ?, 3)`

// SeedSQLite creates table in a sqlite database and inserts calls in the
// remote CDR schema
func SeedSQLite(ctx context.Context, db *sql.DB, table string, calls []Call) error {
	if !tableRE.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createTable, table)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(insertCall, table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range calls {
		channel := "SIP/" + c.Source
		dstChannel := "SIP/" + c.Destination
		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.Time.UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf(`"%s" <%s>`, c.Source, c.Source),
			c.Source, c.Source, c.Destination, c.Destination,
			channel, dstChannel,
			dstChannel+",30",
			c.Duration, c.BillSec, c.Disposition,
		)
		if err != nil {
			return fmt.Errorf("failed to insert call %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit calls: %w", err)
	}
	return nil
}
