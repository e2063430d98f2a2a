package handler

import (
	"context"
	"net/http"

	"github.com/whisper/matchmaker/internal/configs"
	"github.com/whisper/matchmaker/internal/hub"
	"github.com/whisper/matchmaker/internal/matching"
)

// InterestService is the interest persistence and out-of-band matching API
// behind /api. *matching.Service implements it.
type InterestService interface {
	GetInterests(ctx context.Context, userID string) ([]string, error)
	SaveInterests(ctx context.Context, userID string, interests []string) error
	SetOnline(ctx context.Context, userID string, online bool) error
	FindBestMatch(ctx context.Context, userID string, available []string) (*matching.BestMatch, error)
	FindSimilar(ctx context.Context, userID string, interests []string) (*matching.SimilarMatch, error)
}

// StatsSource reports live engine sizes for /health.
type StatsSource interface {
	Stats() hub.Stats
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps bundles everything the router needs. Interests and Database are
// nil when no database is configured.
type AppDeps struct {
	Config    *configs.AppConfig
	Interests InterestService
	Database  Pinger
	Stats     StatsSource
	WebSocket http.Handler
}
