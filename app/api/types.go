package api

import (
	"context"
	"encoding/json"

	"github.com/lysyi3m/season-rank/app/refresh"
	"github.com/lysyi3m/season-rank/app/season"
	"github.com/lysyi3m/season-rank/app/tasks"
)

// SeasonStore is the read side of the season document store.
type SeasonStore interface {
	List() ([]season.Entry, error)
	Load(year, month int) (*season.Document, error)
}

// SeasonLister reports every known season with its cache status.
type SeasonLister interface {
	Seasons(ctx context.Context) ([]refresh.SeasonStatus, error)
}

var (
	_ SeasonStore  = (*season.Store)(nil)
	_ SeasonLister = (*refresh.Refresher)(nil)
)

type Handler struct {
	store     SeasonStore
	seasons   SeasonLister
	scheduler tasks.TaskSchedulerInterface
}

type AvailableSeasons struct {
	CurrentSeasonID  int   `json:"current_season_id"`
	AvailableSeasons []int `json:"available_seasons"`
}

type SeasonDetail struct {
	SeasonID  string            `json:"season_id"`
	Title     string            `json:"title"`
	UpdatedAt string            `json:"updated_at"`
	Subjects  []json.RawMessage `json:"subjects"`
}
