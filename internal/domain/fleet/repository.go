package fleet

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type FailoverRepository interface {
	Create(ctx context.Context, record *FailoverRecord) error
	ListRecent(ctx context.Context, limit int) ([]*FailoverRecord, error)
	ListByGuild(ctx context.Context, guildID snowflake.ID, limit int) ([]*FailoverRecord, error)
}

type StatsSampleRepository interface {
	Create(ctx context.Context, sample *StatsSample) error
	ListByNode(ctx context.Context, nodeName string, limit int) ([]*StatsSample, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
