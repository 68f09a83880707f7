// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}
	return db.CreateIndexes()
}

// Timestamps are naive wall-clock values exactly as read from the source
// files. created_at is always supplied by the caller.
var tableQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS files_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS files (
		id BIGINT PRIMARY KEY DEFAULT nextval('files_id_seq'),
		case_id BIGINT NOT NULL,
		filename TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0,
		stored_path TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS readers (
		id TEXT PRIMARY KEY,
		name TEXT,
		road TEXT,
		province TEXT,
		locality TEXT,
		latitude DOUBLE,
		longitude DOUBLE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS presence_records_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS presence_records (
		id BIGINT PRIMARY KEY DEFAULT nextval('presence_records_id_seq'),
		case_id BIGINT NOT NULL,
		file_id BIGINT NOT NULL,
		plate TEXT NOT NULL,
		observed_at TIMESTAMP NOT NULL,
		reader_id TEXT,
		latitude DOUBLE,
		longitude DOUBLE,
		lane TEXT,
		speed DOUBLE,
		source_kind TEXT NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS external_records_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS external_records (
		id BIGINT PRIMARY KEY DEFAULT nextval('external_records_id_seq'),
		case_id BIGINT NOT NULL,
		file_id BIGINT NOT NULL,
		plate TEXT NOT NULL,
		source_name TEXT NOT NULL,
		observed_at TIMESTAMP,
		attributes TEXT NOT NULL DEFAULT '{}'
	)`,
}

var indexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_presence_dedup ON presence_records (case_id, plate, observed_at, reader_id)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_reader_time ON presence_records (reader_id, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_file ON presence_records (file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_external_case_plate ON external_records (case_id, plate)`,
	`CREATE INDEX IF NOT EXISTS idx_files_case ON files (case_id)`,
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", q, err)
		}
	}
	return nil
}

// CreateIndexes creates the secondary indexes. New calls it unless
// SkipIndexes is set.
func (db *DB) CreateIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range indexQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", q, err)
		}
	}
	return nil
}
