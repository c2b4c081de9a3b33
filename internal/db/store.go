package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinicvoice/internal/domain"
)

var ErrProfileNotFound = errors.New("caller profile not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS caller_profiles (
			phone TEXT PRIMARY KEY,
			known_name TEXT NOT NULL,
			call_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS call_turns (
			turn_id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			caller_number TEXT,
			turn INTEGER NOT NULL,
			state TEXT NOT NULL,
			language TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			engine TEXT,
			intent TEXT,
			path TEXT,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			reply TEXT NOT NULL,
			next_action TEXT NOT NULL,
			fallbacks INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_call_turn ON call_turns(call_id, turn);`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_created ON call_turns(created_at);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) KnownName(ctx context.Context, phone string) (string, error) {
	phone = normalizePhone(phone)
	if phone == "" {
		return "", ErrProfileNotFound
	}
	var name string
	err := s.pool.QueryRow(ctx, `
		SELECT known_name
		FROM caller_profiles
		WHERE phone=$1
	`, phone).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load caller profile: %w", err)
	}
	return name, nil
}

func (s *Store) SaveKnownName(ctx context.Context, phone, name string) error {
	phone = normalizePhone(phone)
	name = strings.TrimSpace(name)
	if phone == "" || name == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO caller_profiles(phone, known_name, call_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (phone)
		DO UPDATE SET known_name = EXCLUDED.known_name,
			call_count = caller_profiles.call_count + 1,
			updated_at = NOW();
	`, phone, name)
	if err != nil {
		return fmt.Errorf("save caller profile: %w", err)
	}
	return nil
}

func (s *Store) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_turns(turn_id, call_id, caller_number, turn, state, language, transcript,
			engine, intent, path, confidence, reply, next_action, fallbacks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (turn_id) DO NOTHING
	`,
		rec.TurnID, rec.CallID, nullIfEmpty(normalizePhone(rec.CallerNumber)), rec.Turn, rec.State,
		string(rec.Language), rec.Transcript, nullIfEmpty(rec.Engine), nullIfEmpty(rec.Intent),
		nullIfEmpty(string(rec.Path)), rec.Confidence, rec.Reply, string(rec.NextAction), rec.Fallbacks,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// CallTurns returns the logged turns of a call in turn order.
func (s *Store) CallTurns(ctx context.Context, callID string, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT turn_id, call_id, COALESCE(caller_number, ''), turn, state, language, transcript,
			COALESCE(engine, ''), COALESCE(intent, ''), COALESCE(path, ''), confidence, reply,
			next_action, fallbacks, created_at
		FROM call_turns
		WHERE call_id=$1
		ORDER BY turn ASC
		LIMIT $2
	`, callID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TurnRecord
	for rows.Next() {
		var (
			rec        domain.TurnRecord
			lang, path string
			action     string
		)
		if err := rows.Scan(&rec.TurnID, &rec.CallID, &rec.CallerNumber, &rec.Turn, &rec.State, &lang,
			&rec.Transcript, &rec.Engine, &rec.Intent, &path, &rec.Confidence, &rec.Reply, &action,
			&rec.Fallbacks, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Language = domain.Language(lang)
		rec.Path = domain.ResolutionPath(path)
		rec.NextAction = domain.NextAction(action)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// normalizePhone keeps a leading plus and the digits.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var sb strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '+' && i == 0:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 || sb.String() == "+" {
		return ""
	}
	return sb.String()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
