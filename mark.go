package deleteunwanted

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anacrolix/log"

	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

var ErrUnknownPath = errors.New("no torrent has a file with this path")

type fileRef struct {
	torrent int64
	file    int
}

// Reads file paths relative to the download directory, one per line, and marks each as unwanted in
// the torrents that contain it. Every path is resolved before any torrent changes, so an unknown
// path changes nothing. Each torrent gets a single change, in the order first referred to.
func MarkUnwanted(ctx context.Context, daemon Daemon, r io.Reader) (err error) {
	ctx, span := tracer.Start(ctx, "MarkUnwanted")
	defer func() { endSpan(span, err) }()
	ts, err := daemon.GetTorrents(ctx, []transmission.Field{
		transmission.FieldID,
		transmission.FieldName,
		transmission.FieldFiles,
	})
	if err != nil {
		return fmt.Errorf("listing torrents: %w", err)
	}
	byName := make(map[string][]fileRef)
	for _, t := range ts {
		for i, f := range t.Files {
			byName[f.Name] = append(byName[f.Name], fileRef{t.ID, i})
		}
	}

	var order []int64
	unwanted := make(map[int64][]int)
	seen := make(map[fileRef]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimRight(scanner.Text(), "\r\n")
		if name == "" {
			continue
		}
		refs, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPath, name)
		}
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if _, ok := unwanted[ref.torrent]; !ok {
				order = append(order, ref.torrent)
			}
			unwanted[ref.torrent] = append(unwanted[ref.torrent], ref.file)
		}
	}
	err = scanner.Err()
	if err != nil {
		return fmt.Errorf("reading paths: %w", err)
	}

	for _, id := range order {
		files := unwanted[id]
		logger.WithDefaultLevel(log.Info).Printf("marking %v files unwanted in torrent %v", len(files), id)
		err = daemon.ChangeTorrent(ctx, transmission.NumericID(id), transmission.TorrentChanges{
			FilesUnwanted: files,
		})
		if err != nil {
			return fmt.Errorf("changing torrent %v: %w", id, err)
		}
	}
	return nil
}
