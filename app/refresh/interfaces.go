package refresh

import (
	"context"
	"encoding/json"

	"github.com/lysyi3m/season-rank/app/bgm"
	"github.com/lysyi3m/season-rank/app/season"
)

// Lister yields the seasonal indices in listing order.
type Lister interface {
	ListSeasons(ctx context.Context) ([]season.Index, error)
}

// Catalog reads index and subject records. Implementations return the
// records fetched so far together with the error when pagination breaks.
type Catalog interface {
	IndexDetail(ctx context.Context, indexID string) (*bgm.IndexDetail, error)
	IndexSubjects(ctx context.Context, indexID string) ([]bgm.SubjectStub, error)
	SubjectDetail(ctx context.Context, subjectID int64) (json.RawMessage, error)
}

// Store persists one document per season.
type Store interface {
	State(year, month int) season.State
	Load(year, month int) (*season.Document, error)
	Save(doc *season.Document, year, month int) error
	List() ([]season.Entry, error)
}

var (
	_ Lister  = (*bgm.Lister)(nil)
	_ Catalog = (*bgm.Catalog)(nil)
	_ Store   = (*season.Store)(nil)
)
