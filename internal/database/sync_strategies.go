// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// The three reconciliation strategies. Each operates on the transaction of
// the calling writer; none opens its own. All scopes are game-level
// (table_id) because every replay document carries the complete fact set for
// its game, so per-game replacement subsumes per-player replacement and
// handles player-set changes between ingestions.

// keyedMerge upserts rows by primary key: update the stored row when the key
// exists, insert otherwise. Used where a table holds exactly one row per key
// regardless of how many times the game is ingested.
func keyedMerge(ctx context.Context, tx *sql.Tx, table string, columns, keyColumns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	keys := map[string]bool{}
	for _, k := range keyColumns {
		keys[k] = true
	}
	var updates []string
	for _, col := range columns {
		if !keys[col] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		placeholders(len(columns)),
		strings.Join(keyColumns, ", "),
		strings.Join(updates, ", "),
	)

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query, row...); err != nil {
			return fmt.Errorf("keyed merge into %s failed: %w", table, err)
		}
	}
	return nil
}

// scopedReplace deletes all stored rows for the game and inserts the freshly
// extracted set. Used where row membership can shrink or change between
// ingestions and a stale row must not survive. Zero extracted rows still
// performs the delete to clear prior data.
func scopedReplace(ctx context.Context, tx *sql.Tx, table string, tableID int64, columns []string, rows [][]interface{}) error {
	if err := deleteScope(ctx, tx, table, tableID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		placeholders(len(columns)),
	)
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query, row...); err != nil {
			return fmt.Errorf("scoped replace insert into %s failed: %w", table, err)
		}
	}
	return nil
}

// stagedBulkReplace loads the extracted rows into a transient staging table
// with chunked multi-row inserts, deletes the game scope from the target,
// and repopulates it from staging in one set-based statement. Used for the
// high-volume tables (tens to low hundreds of rows per game). The staging
// table lives and dies inside the caller's transaction; its name carries a
// unique suffix so concurrent ingestions never collide.
func stagedBulkReplace(ctx context.Context, tx *sql.Tx, table string, tableID int64, columns []string, rows [][]interface{}, chunkSize int) error {
	if err := deleteScope(ctx, tx, table, tableID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	staging := fmt.Sprintf("staging_%s_%s", table, strings.ReplaceAll(uuid.NewString(), "-", ""))

	createStmt := fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT %s FROM %s WHERE 1 = 0",
		staging, strings.Join(columns, ", "), table)
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create staging table for %s: %w", table, err)
	}

	rowPlaceholder := "(" + placeholders(len(columns)) + ")"
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tuples := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			tuples[i] = rowPlaceholder
			args = append(args, row...)
		}
		insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			staging, strings.Join(columns, ", "), strings.Join(tuples, ", "))
		if _, err := tx.ExecContext(ctx, insertStmt, args...); err != nil {
			return fmt.Errorf("bulk load into staging for %s failed: %w", table, err)
		}
	}

	copyStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		table, strings.Join(columns, ", "), strings.Join(columns, ", "), staging)
	if _, err := tx.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("staged copy into %s failed: %w", table, err)
	}

	dropStmt := fmt.Sprintf("DROP TABLE %s", staging)
	if _, err := tx.ExecContext(ctx, dropStmt); err != nil {
		return fmt.Errorf("failed to drop staging table for %s: %w", table, err)
	}
	return nil
}

func deleteScope(ctx context.Context, tx *sql.Tx, table string, tableID int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE table_id = ?", table)
	if _, err := tx.ExecContext(ctx, query, tableID); err != nil {
		return fmt.Errorf("scope delete from %s failed: %w", table, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
