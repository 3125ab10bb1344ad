package deleteunwanted

import (
	"context"
	"errors"
	"fmt"

	"github.com/anacrolix/log"

	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

// Processes each torrent in turn, or every torrent in the daemon if ids is empty. A failing torrent
// doesn't stop the others, and all failures are returned joined. Corruption stops everything
// immediately, as it means the assumptions this relies on don't hold.
func (p *Processor) ProcessTorrents(ctx context.Context, ids []transmission.ID) error {
	if len(ids) == 0 {
		ts, err := p.Daemon.GetTorrents(ctx, []transmission.Field{transmission.FieldID})
		if err != nil {
			return fmt.Errorf("listing torrents: %w", err)
		}
		for _, t := range ts {
			ids = append(ids, transmission.NumericID(t.ID))
		}
	}
	var errs []error
	for _, id := range ids {
		err := p.ProcessTorrent(ctx, id)
		if err == nil {
			continue
		}
		err = fmt.Errorf("torrent %v: %w", id, err)
		if errors.Is(err, ErrCorruptionDetected) || ctx.Err() != nil {
			return errors.Join(append(errs, err)...)
		}
		logger.WithDefaultLevel(log.Warning).Printf("%v", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
