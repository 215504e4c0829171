package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// ChangeFeed pushes collection change notices between writers and readers.
type ChangeFeed interface {
	Publish(ctx context.Context, change domain.Change) error

	// Subscribe delivers changes for the given collections until ctx is done,
	// then closes the channel.
	Subscribe(ctx context.Context, collections ...string) (<-chan domain.Change, error)
}
