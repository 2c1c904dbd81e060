package store

import (
	"context"
	"time"
)

// AssetRecord is one downloaded file in a tour's cache namespace.
type AssetRecord struct {
	TourID      string
	URL         string
	Body        []byte
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// CacheInfo describes a registered tour cache and how full it is.
type CacheInfo struct {
	TourID     string
	Slug       string
	AssetCount int
	TotalBytes int64
	CreatedAt  time.Time
}

// AssetStore persists downloaded tour files keyed by (tour, url).
type AssetStore interface {
	PutAsset(ctx context.Context, tourID, url string, body []byte, contentType string) error
	GetAsset(ctx context.Context, tourID, url string) (*AssetRecord, error)
	HasAsset(ctx context.Context, tourID, url string) (bool, error)
	ListAssetURLs(ctx context.Context, tourID string) ([]string, error)
	CountAssets(ctx context.Context, tourID string) (int, error)
	DeleteTourAssets(ctx context.Context, tourID string) (int64, error)
}

// CacheRegistry tracks which tours own a cache namespace. A namespace
// exists from the moment a download starts, even before any asset lands.
type CacheRegistry interface {
	RegisterCache(ctx context.Context, tourID, slug string) error
	UnregisterCache(ctx context.Context, tourID string) error
	ListCaches(ctx context.Context) ([]CacheInfo, error)
	ReapEmptyCaches(ctx context.Context) ([]string, error)
}

// StateStore handles persistent client state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
