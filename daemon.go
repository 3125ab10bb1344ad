package deleteunwanted

import (
	"context"

	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

// The daemon operations used here. *transmission.Client implements it against a real daemon.
type Daemon interface {
	GetTorrent(ctx context.Context, id transmission.ID, fields []transmission.Field) (transmission.Torrent, error)
	GetTorrents(ctx context.Context, fields []transmission.Field) ([]transmission.Torrent, error)
	StopTorrent(ctx context.Context, id transmission.ID) error
	StartTorrent(ctx context.Context, id transmission.ID) error
	VerifyTorrent(ctx context.Context, id transmission.ID) error
	ChangeTorrent(ctx context.Context, id transmission.ID, changes transmission.TorrentChanges) error
	GetSession(ctx context.Context) (transmission.Session, error)
}

var _ Daemon = (*transmission.Client)(nil)

var layoutFields = []transmission.Field{
	transmission.FieldID,
	transmission.FieldHashString,
	transmission.FieldName,
	transmission.FieldDownloadDir,
	transmission.FieldFiles,
	transmission.FieldWanted,
	transmission.FieldPieces,
	transmission.FieldPieceCount,
	transmission.FieldPieceSize,
	transmission.FieldStatus,
}

var statusFields = []transmission.Field{
	transmission.FieldStatus,
	transmission.FieldPieces,
	transmission.FieldPieceCount,
}
