package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

const StatusPublish = "publish"

// MetaScore is the item meta key holding the latest visibility score.
const MetaScore = "visibility_score"

// Item is a content unit owned by the publishing platform.
type Item struct {
	ID        int64
	URL       string
	Title     string
	Body      string
	Type      string
	Status    string
	UpdatedAt time.Time
}

type SiteSnapshot struct {
	ID           int64     `json:"id"`
	Date         string    `json:"date"`
	AvgScore     *float64  `json:"avg_score"`
	ScannedCount int       `json:"scanned_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Entity struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Confidence int    `json:"confidence"`
}

// ContentStore exposes items and their key-value metadata. Metadata values are
// stored JSON-encoded.
type ContentStore interface {
	GetItem(ctx context.Context, id int64) (*Item, error)
	SaveItem(ctx context.Context, item Item) (int64, error)
	ListPublishedIDs(ctx context.Context, types []string) ([]int64, error)
	ItemIDByURL(ctx context.Context, url string) (int64, bool, error)
	FindByTitle(ctx context.Context, terms, types []string, excludeID int64, limit int) ([]Item, error)
	PublishedScores(ctx context.Context, types []string) ([]float64, error)

	GetMeta(ctx context.Context, id int64, key string, dst any) (bool, error)
	SetMeta(ctx context.Context, id int64, key string, value any) error
	DeleteMeta(ctx context.Context, id int64, key string) error
}

// TransientStore is a key-value store with expiry. Expired rows read as absent.
type TransientStore interface {
	SetTransient(ctx context.Context, name, value string, ttl time.Duration) error
	GetTransient(ctx context.Context, name string) (string, bool, error)
	TakeTransient(ctx context.Context, name string) (bool, error)
	DeleteTransient(ctx context.Context, name string) error

	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	RenewLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// OptionStore holds site-wide JSON values.
type OptionStore interface {
	GetOption(ctx context.Context, name string, dst any) (bool, error)
	SetOption(ctx context.Context, name string, value any) error
}

type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s SiteSnapshot) (int64, error)
	RecentSnapshots(ctx context.Context, limit int) ([]SiteSnapshot, error)
}

type EntityStore interface {
	ReplaceItemEntities(ctx context.Context, itemID int64, entities []Entity) error
	EntitiesForItem(ctx context.Context, itemID int64) ([]Entity, error)
}

type Storage interface {
	ContentStore
	TransientStore
	OptionStore
	SnapshotStore
	EntityStore
	Close() error
}
