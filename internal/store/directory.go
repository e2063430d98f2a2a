package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/whisper/matchmaker/internal/matching"
)

var _ matching.Directory = (*Store)(nil)

// Interests returns the stored interest set for userID.
func (s *Store) Interests(ctx context.Context, userID string) ([]string, bool, error) {
	const query = `
		SELECT interests
		FROM user_interests
		WHERE user_id = $1`

	var interests pq.StringArray
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&interests)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get interests: %w", err)
	}
	if interests == nil {
		interests = pq.StringArray{}
	}
	return []string(interests), true, nil
}

// SaveInterests upserts the user as online and replaces their interest set in
// one transaction. A nil embedding leaves the stored vector untouched.
func (s *Store) SaveInterests(ctx context.Context, userID string, interests []string, embedding []float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsertUser = `
		INSERT INTO users (id, display_name, is_online, last_active)
		VALUES ($1, $1, TRUE, NOW())
		ON CONFLICT (id) DO UPDATE SET
			is_online = TRUE,
			last_active = NOW()`

	if _, err := tx.ExecContext(ctx, upsertUser, userID); err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}

	if interests == nil {
		interests = []string{}
	}

	const upsertInterests = `
		INSERT INTO user_interests (user_id, interests, embedding, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			interests = EXCLUDED.interests,
			embedding = COALESCE(EXCLUDED.embedding, user_interests.embedding),
			updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, upsertInterests, userID, pq.StringArray(interests), pq.Float64Array(embedding)); err != nil {
		return fmt.Errorf("store: upsert interests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// SetOnline upserts the user with the given presence flag.
func (s *Store) SetOnline(ctx context.Context, userID string, online bool) error {
	const query = `
		INSERT INTO users (id, display_name, is_online, last_active)
		VALUES ($1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			is_online = EXCLUDED.is_online,
			last_active = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID, online); err != nil {
		return fmt.Errorf("store: set online: %w", err)
	}
	return nil
}

// Candidates returns the online users among userIDs that have an interest
// set, excluding exclude, in the order they appear in userIDs.
func (s *Store) Candidates(ctx context.Context, userIDs []string, exclude string) ([]matching.Candidate, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT u.id, u.display_name, u.photo_url, ui.interests
		FROM users u
		JOIN user_interests ui ON ui.user_id = u.id
		WHERE u.id = ANY($1)
		  AND u.is_online
		  AND u.id <> $2`

	rows, err := s.db.QueryContext(ctx, query, pq.StringArray(userIDs), exclude)
	if err != nil {
		return nil, fmt.Errorf("store: query candidates: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]matching.Candidate)
	for rows.Next() {
		var (
			c         matching.Candidate
			interests pq.StringArray
		)
		if err := rows.Scan(&c.UserID, &c.DisplayName, &c.PhotoURL, &interests); err != nil {
			return nil, fmt.Errorf("store: scan candidate: %w", err)
		}
		c.Interests = []string(interests)
		byID[c.UserID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate candidates: %w", err)
	}

	out := make([]matching.Candidate, 0, len(byID))
	for _, id := range userIDs {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out, nil
}

// SimilarCandidates returns online users with a stored embedding that have
// never been matched with userID in either direction.
func (s *Store) SimilarCandidates(ctx context.Context, userID string) ([]matching.Candidate, error) {
	const query = `
		SELECT u.id, u.display_name, u.photo_url, ui.interests, ui.embedding
		FROM users u
		JOIN user_interests ui ON ui.user_id = u.id
		WHERE u.id <> $1
		  AND u.is_online
		  AND ui.embedding IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE (m.user_id = $1 AND m.matched_user_id = u.id)
			   OR (m.user_id = u.id AND m.matched_user_id = $1)
		  )
		ORDER BY u.last_active DESC, u.id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: query similar candidates: %w", err)
	}
	defer rows.Close()

	var out []matching.Candidate
	for rows.Next() {
		var (
			c         matching.Candidate
			interests pq.StringArray
			vec       pq.Float64Array
		)
		if err := rows.Scan(&c.UserID, &c.DisplayName, &c.PhotoURL, &interests, &vec); err != nil {
			return nil, fmt.Errorf("store: scan similar candidate: %w", err)
		}
		c.Interests = []string(interests)
		c.Embedding = []float64(vec)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate similar candidates: %w", err)
	}
	return out, nil
}

// RecordMatch stores a pairing so the two users are not offered to each
// other again.
func (s *Store) RecordMatch(ctx context.Context, userID, matchedID string, score float64, roomID string) error {
	const query = `
		INSERT INTO matches (user_id, matched_user_id, similarity, room_id)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, userID, matchedID, score, roomID); err != nil {
		return fmt.Errorf("store: record match: %w", err)
	}
	return nil
}

// Icebreaker returns a random question from one of categories, or "" when
// no question exists for any of them.
func (s *Store) Icebreaker(ctx context.Context, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}

	const query = `
		SELECT question
		FROM icebreakers
		WHERE category = ANY($1)
		ORDER BY RANDOM()
		LIMIT 1`

	var question string
	err := s.db.QueryRowContext(ctx, query, pq.StringArray(categories)).Scan(&question)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: icebreaker: %w", err)
	}
	return question, nil
}
