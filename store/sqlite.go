// Package store keeps parsed messages in a local SQLite database so they can be
// looked up by message ID after a run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"

	"royal/parser"
)

// StoredMessage is a parsed message together with where it came from
type StoredMessage struct {
	Source  string
	Record  int
	Message parser.Message
}

// SQLiteStore persists parsed messages in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema exists
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsnPath(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsnPath escapes the characters that would otherwise end the path part of a
// file: URI, so names containing ? or # open the file they name
func dsnPath(path string) string {
	return dsnEscaper.Replace(filepath.ToSlash(path))
}

var dsnEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// initSchema creates tables if they don't exist
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		source          TEXT NOT NULL,
		record_index    INTEGER NOT NULL,
		message_id      TEXT NOT NULL,
		box_type        TEXT NOT NULL,
		character       TEXT,
		content         TEXT NOT NULL,
		has_lipsync     INTEGER NOT NULL DEFAULT 0,
		wait_for_input  INTEGER NOT NULL DEFAULT 0,
		confidant_id    INTEGER,
		points          INTEGER,
		model_id        INTEGER,
		parsed_at       TEXT NOT NULL,
		PRIMARY KEY (source, record_index)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
	CREATE INDEX IF NOT EXISTS idx_messages_box_type ON messages(box_type);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores msg as record number record of source, replacing any previous row
func (s *SQLiteStore) Save(ctx context.Context, source string, record int, msg *parser.Message) error {
	if msg == nil {
		return errors.New("cannot save nil message")
	}

	var character sql.NullString
	if msg.Header.Character != nil {
		character = sql.NullString{String: *msg.Header.Character, Valid: true}
	}
	var confidantID, points, modelID sql.NullInt64
	if cp := msg.ConfidantPoints; cp != nil {
		confidantID = sql.NullInt64{Int64: int64(cp.ConfidantID), Valid: true}
		points = sql.NullInt64{Int64: int64(cp.Points), Valid: true}
		modelID = sql.NullInt64{Int64: int64(cp.ModelID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
			(source, record_index, message_id, box_type, character, content,
			 has_lipsync, wait_for_input, confidant_id, points, model_id, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		source, record, msg.Header.MessageID, msg.Header.BoxType.String(), character, msg.Content,
		msg.Flags.HasLipsync, msg.Flags.WaitForInput, confidantID, points, modelID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", msg.Header.MessageID, err)
	}
	return nil
}

// FindByMessageID returns every stored message with the given ID, ordered by source and position
func (s *SQLiteStore) FindByMessageID(ctx context.Context, messageID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, record_index, message_id, box_type, character, content,
		       has_lipsync, wait_for_input, confidant_id, points, model_id
		FROM messages
		WHERE message_id = ?
		ORDER BY source, record_index`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", messageID, err)
	}
	defer rows.Close()

	var found []StoredMessage
	for rows.Next() {
		var (
			stored                     StoredMessage
			boxType                    string
			character                  sql.NullString
			confidantID, points, model sql.NullInt64
		)
		msg := &stored.Message
		if err := rows.Scan(&stored.Source, &stored.Record, &msg.Header.MessageID, &boxType, &character,
			&msg.Content, &msg.Flags.HasLipsync, &msg.Flags.WaitForInput, &confidantID, &points, &model); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.Header.BoxType = parser.ParseBoxTypeName(boxType)
		if character.Valid {
			name := character.String
			msg.Header.Character = &name
		}
		if confidantID.Valid && points.Valid && model.Valid {
			msg.ConfidantPoints = &parser.ConfidantPoints{
				ConfidantID: uint8(confidantID.Int64),
				Points:      uint8(points.Int64),
				ModelID:     uint16(model.Int64),
			}
		}
		found = append(found, stored)
	}
	return found, rows.Err()
}

// CountByBoxType returns the number of stored messages per box type name
func (s *SQLiteStore) CountByBoxType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT box_type, COUNT(*) FROM messages GROUP BY box_type`)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var boxType string
		var n int
		if err := rows.Scan(&boxType, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[boxType] = n
	}
	return counts, rows.Err()
}
