package evidence

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"secbrief/internal/types"
)

// Mock sources stand in for the real filings, analyst-report, and market
// data providers. Content is derived deterministically from the entity
// ID so generation and verification behave reproducibly in development
// and tests.

// seedFor derives a stable per-entity seed.
func seedFor(entityID string, salt string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(entityID))
	h.Write([]byte(salt))
	return h.Sum64()
}

// MockFilingsSource emulates a regulatory-filings provider.
type MockFilingsSource struct{}

func (s *MockFilingsSource) Type() types.SourceType { return types.SourceFilings }

func (s *MockFilingsSource) Fetch(ctx context.Context, entityID string, lookback time.Duration) ([]types.Document, types.FetchStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.FetchFailed, err
	}

	seed := seedFor(entityID, "filings")
	revenue := 100 + seed%900         // millions
	growth := 2 + seed%18             // percent
	margin := 10 + (seed>>8)%25       // percent
	now := time.Now()

	docs := []types.Document{
		{
			Source:    types.SourceFilings,
			Timestamp: now.Add(-30 * 24 * time.Hour),
			Content: fmt.Sprintf(
				"%s reported quarterly revenue of $%d million, up %d%% year over year. Operating margin was %d%%.",
				entityID, revenue, growth, margin),
		},
		{
			Source:    types.SourceFilings,
			Timestamp: now.Add(-90 * 24 * time.Hour),
			Content: fmt.Sprintf(
				"%s filed its annual report for fiscal year %d. Total assets stood at $%d million.",
				entityID, now.Year()-1, revenue*4),
		},
	}
	return docs, types.FetchSuccess, nil
}

// MockAnalystSource emulates an analyst-report provider.
type MockAnalystSource struct{}

func (s *MockAnalystSource) Type() types.SourceType { return types.SourceAnalyst }

func (s *MockAnalystSource) Fetch(ctx context.Context, entityID string, lookback time.Duration) ([]types.Document, types.FetchStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.FetchFailed, err
	}

	seed := seedFor(entityID, "analyst")
	target := 20 + seed%180
	ratings := []string{"buy", "hold", "outperform", "neutral"}
	rating := ratings[seed%uint64(len(ratings))]

	docs := []types.Document{
		{
			Source:    types.SourceAnalyst,
			Timestamp: time.Now().Add(-14 * 24 * time.Hour),
			Content: fmt.Sprintf(
				"Consensus analyst rating for %s is %s with a price target of $%d.",
				entityID, rating, target),
		},
	}
	return docs, types.FetchSuccess, nil
}

// MockMarketSource emulates a market-data events provider.
type MockMarketSource struct{}

func (s *MockMarketSource) Type() types.SourceType { return types.SourceMarket }

func (s *MockMarketSource) Fetch(ctx context.Context, entityID string, lookback time.Duration) ([]types.Document, types.FetchStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.FetchFailed, err
	}

	seed := seedFor(entityID, "market")
	price := 10 + seed%490
	volume := 1 + (seed>>16)%40

	docs := []types.Document{
		{
			Source:    types.SourceMarket,
			Timestamp: time.Now().Add(-24 * time.Hour),
			Content: fmt.Sprintf(
				"%s closed at $%d with average daily volume of %d million shares over the lookback window.",
				entityID, price, volume),
		},
	}
	return docs, types.FetchSuccess, nil
}

// NewMockSource returns the mock implementation for a source type.
func NewMockSource(st types.SourceType) (Source, error) {
	switch st {
	case types.SourceFilings:
		return &MockFilingsSource{}, nil
	case types.SourceAnalyst:
		return &MockAnalystSource{}, nil
	case types.SourceMarket:
		return &MockMarketSource{}, nil
	default:
		return nil, fmt.Errorf("no mock source for type %q", st)
	}
}
