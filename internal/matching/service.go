package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/whisper/matchmaker/internal/embedding"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/pkg/randx"
)

// DefaultSimilarityThreshold is the cosine similarity a candidate must
// exceed to be accepted by FindSimilar.
const DefaultSimilarityThreshold = 0.7

var (
	ErrNoUsers     = errors.New("matching: no candidate users supplied")
	ErrNoInterests = errors.New("matching: user has no stored interests")
	ErrNoMatch     = errors.New("matching: no suitable match")
)

// Candidate is a stored user profile considered by the out-of-band flows.
type Candidate struct {
	UserID      string
	DisplayName string
	PhotoURL    string
	Interests   []string
	Embedding   []float64
}

// Directory is the persistent user-interest store.
type Directory interface {
	// Interests returns the stored interest set. found is false when the
	// user or their interest set does not exist.
	Interests(ctx context.Context, userID string) (interests []string, found bool, err error)
	// SaveInterests upserts the user as online together with their interests.
	// A nil embedding keeps the stored one.
	SaveInterests(ctx context.Context, userID string, interests []string, embedding []float64) error
	SetOnline(ctx context.Context, userID string, online bool) error
	// Candidates returns online users among userIDs, excluding exclude, in
	// the order of userIDs.
	Candidates(ctx context.Context, userIDs []string, exclude string) ([]Candidate, error)
	// SimilarCandidates returns online users with an embedding that were
	// never matched with userID.
	SimilarCandidates(ctx context.Context, userID string) ([]Candidate, error)
	RecordMatch(ctx context.Context, userID, matchedID string, score float64, roomID string) error
	// Icebreaker returns a random question from one of the categories, or
	// "" when none exists.
	Icebreaker(ctx context.Context, categories []string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BestMatch is the result of FindBestMatch.
type BestMatch struct {
	UserID          string   `json:"userId"`
	DisplayName     string   `json:"displayName"`
	PhotoURL        string   `json:"photoUrl"`
	CommonInterests []string `json:"commonInterests"`
	SimilarityScore int      `json:"similarityScore"`
}

// MatchedUser describes the partner chosen by FindSimilar.
type MatchedUser struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	PhotoURL        string   `json:"photoUrl"`
	CommonInterests []string `json:"commonInterests"`
}

// SimilarMatch is the result of FindSimilar.
type SimilarMatch struct {
	MatchedUser MatchedUser `json:"matchedUser"`
	RoomID      string      `json:"roomId"`
	Icebreaker  string      `json:"icebreaker,omitempty"`
	Similarity  float64     `json:"similarity"`
}

// Service implements the interest persistence and out-of-band matching flows
// on top of a Directory. The embedder may be nil, in which case interests are
// stored without a vector and FindSimilar is unavailable.
type Service struct {
	dir       Directory
	embedder  Embedder
	threshold float64
	now       func() time.Time
}

// NewService builds a Service. A threshold outside (0, 1) falls back to
// DefaultSimilarityThreshold.
func NewService(dir Directory, embedder Embedder, threshold float64) *Service {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Service{dir: dir, embedder: embedder, threshold: threshold, now: time.Now}
}

// embed returns nil without error when no embedder is configured.
func (s *Service) embed(ctx context.Context, interests []string) ([]float64, error) {
	if s.embedder == nil || len(interests) == 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, strings.Join(interests, ", "))
	if err != nil {
		return nil, fmt.Errorf("matching: embed interests: %w", err)
	}
	return vec, nil
}

// SaveInterests normalizes and persists interests, refreshing the stored
// embedding when an embedder is configured. Embedding failures do not block
// the save.
func (s *Service) SaveInterests(ctx context.Context, userID string, interests []string) error {
	interests = NormalizeInterests(interests)

	vec, err := s.embed(ctx, interests)
	if err != nil {
		logx.Warn("interests saved without embedding", "user_id", userID, "error", err.Error())
		vec = nil
	}

	if err := s.dir.SaveInterests(ctx, userID, interests, vec); err != nil {
		return fmt.Errorf("matching: save interests for %s: %w", userID, err)
	}
	return nil
}

// GetInterests returns the stored interests, or an empty list.
func (s *Service) GetInterests(ctx context.Context, userID string) ([]string, error) {
	interests, found, err := s.dir.Interests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matching: get interests for %s: %w", userID, err)
	}
	if !found || interests == nil {
		return []string{}, nil
	}
	return interests, nil
}

// SetOnline updates the user's presence flag.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool) error {
	if err := s.dir.SetOnline(ctx, userID, online); err != nil {
		return fmt.Errorf("matching: set online=%v for %s: %w", online, userID, err)
	}
	return nil
}

// FindBestMatch scores the online users among available by exact interest
// overlap with userID's stored set and returns the highest scorer.
func (s *Service) FindBestMatch(ctx context.Context, userID string, available []string) (*BestMatch, error) {
	if len(available) == 0 {
		return nil, ErrNoUsers
	}

	mine, found, err := s.dir.Interests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matching: load interests for %s: %w", userID, err)
	}
	if !found {
		return nil, ErrNoInterests
	}

	candidates, err := s.dir.Candidates(ctx, available, userID)
	if err != nil {
		return nil, fmt.Errorf("matching: load candidates: %w", err)
	}

	best, common, ok := BestOverlap(mine, candidates)
	if !ok {
		return nil, ErrNoMatch
	}

	name := best.DisplayName
	if name == "" {
		name = best.UserID
	}
	return &BestMatch{
		UserID:          best.UserID,
		DisplayName:     name,
		PhotoURL:        best.PhotoURL,
		CommonInterests: common,
		SimilarityScore: len(common),
	}, nil
}

// FindSimilar stores the caller's interests with a fresh embedding and pairs
// them with the most similar online user above the threshold. The pairing is
// recorded with a new room id so the same two users are not offered again.
func (s *Service) FindSimilar(ctx context.Context, userID string, interests []string) (*SimilarMatch, error) {
	if s.embedder == nil {
		return nil, embedding.ErrUnavailable
	}

	interests = NormalizeInterests(interests)
	vec, err := s.embed(ctx, interests)
	if err != nil {
		return nil, err
	}
	if vec == nil {
		return nil, ErrNoInterests
	}

	if err := s.dir.SaveInterests(ctx, userID, interests, vec); err != nil {
		return nil, fmt.Errorf("matching: save interests for %s: %w", userID, err)
	}

	candidates, err := s.dir.SimilarCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matching: load similar candidates: %w", err)
	}

	var (
		best      *Candidate
		bestScore = s.threshold
	)
	for i := range candidates {
		score, err := embedding.Cosine(vec, candidates[i].Embedding)
		if err != nil {
			continue
		}
		if score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoMatch
	}

	roomID, err := randx.RoomID(s.now())
	if err != nil {
		return nil, fmt.Errorf("matching: room id: %w", err)
	}
	if err := s.dir.RecordMatch(ctx, userID, best.UserID, bestScore, roomID); err != nil {
		return nil, fmt.Errorf("matching: record match: %w", err)
	}

	question, err := s.dir.Icebreaker(ctx, interests)
	if err != nil {
		logx.Warn("icebreaker lookup failed", "user_id", userID, "error", err.Error())
		question = ""
	}

	return &SimilarMatch{
		MatchedUser: MatchedUser{
			ID:              best.UserID,
			DisplayName:     best.DisplayName,
			PhotoURL:        best.PhotoURL,
			CommonInterests: CommonInterests(interests, best.Interests),
		},
		RoomID:     roomID,
		Icebreaker: question,
		Similarity: bestScore,
	}, nil
}
