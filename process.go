package deleteunwanted

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dechamps/transmission-delete-unwanted/bitfield"
	"github.com/dechamps/transmission-delete-unwanted/internal/metrics"
	"github.com/dechamps/transmission-delete-unwanted/pieces"
	"github.com/dechamps/transmission-delete-unwanted/storage"
	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

var (
	logger = log.Default.WithNames("deleteunwanted")
	tracer = otel.Tracer("transmission-delete-unwanted")
)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type Processor struct {
	Daemon Daemon
	// Where torrent files live. If empty, each torrent's own download directory is used, falling
	// back to the session's.
	DownloadDir string
	// Report what would be done without stopping, changing, or verifying anything.
	DryRun bool
	Poll   PollConfig
	// Progress lines for the operator. Nil discards them.
	Out     io.Writer
	Metrics *metrics.Metrics

	sessionDownloadDir g.Option[string]
}

func (p *Processor) out() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}

func (p *Processor) printf(format string, args ...any) {
	fmt.Fprintf(p.out(), format+"\n", args...)
}

// What was worked out from one fetch of the torrent.
type plan struct {
	torrent transmission.Torrent
	layout  pieces.Layout
	wanted  []bool
	present []bool
	summary pieces.Summary
	// Only set if there's something to reclaim.
	actions []pieces.Action
}

func (pl plan) nothingToDo() bool {
	return pl.summary.PresentUnwanted == 0
}

func (pl plan) presentWanted() *pieces.Set {
	return pieces.SetFromBoolsAnd(pl.present, pl.wanted)
}

func newPlan(t transmission.Torrent) (pl plan, err error) {
	pl.torrent = t
	if len(t.Wanted) != len(t.Files) {
		err = fmt.Errorf(
			"%w: %v files but %v wanted flags",
			pieces.ErrInconsistentLayout, len(t.Files), len(t.Wanted))
		return
	}
	pl.layout = pieces.Layout{
		Files:      make([]pieces.File, 0, len(t.Files)),
		PieceSize:  t.PieceSize,
		PieceCount: t.PieceCount,
	}
	for i, f := range t.Files {
		pl.layout.Files = append(pl.layout.Files, pieces.File{
			Name:   f.Name,
			Length: f.Length,
			Wanted: t.Wanted[i],
		})
	}
	pl.wanted, err = pl.layout.Wanted()
	if err != nil {
		return
	}
	pl.present, err = bitfield.DecodeBase64(t.Pieces, t.PieceCount)
	if err != nil {
		err = fmt.Errorf("decoding present pieces: %w", err)
		return
	}
	pl.summary = pieces.Summarize(t.PieceSize, pl.wanted, pl.present)
	if pl.nothingToDo() {
		return
	}
	pl.actions, err = pieces.Classify(pl.layout, pl.wanted, pl.present)
	return
}

func (p *Processor) fetchPlan(ctx context.Context, id transmission.ID) (pl plan, err error) {
	t, err := p.Daemon.GetTorrent(ctx, id, layoutFields)
	if err != nil {
		err = fmt.Errorf("getting torrent: %w", err)
		return
	}
	return newPlan(t)
}

func (p *Processor) downloadDir(ctx context.Context, t transmission.Torrent) (storage.Dir, error) {
	if p.DownloadDir != "" {
		return storage.Dir{Root: p.DownloadDir}, nil
	}
	if t.DownloadDir != "" {
		return storage.Dir{Root: t.DownloadDir}, nil
	}
	if !p.sessionDownloadDir.Ok {
		s, err := p.Daemon.GetSession(ctx)
		if err != nil {
			return storage.Dir{}, fmt.Errorf("getting session: %w", err)
		}
		if s.DownloadDir == "" {
			return storage.Dir{}, errors.New("daemon didn't report a download directory")
		}
		p.sessionDownloadDir = g.Some(s.DownloadDir)
	}
	return storage.Dir{Root: p.sessionDownloadDir.Value}, nil
}

// Reclaims the space held by unwanted pieces of one torrent. The torrent is stopped while its files
// change, verified afterwards, and restarted if it was running.
func (p *Processor) ProcessTorrent(ctx context.Context, id transmission.ID) (err error) {
	ctx, span := tracer.Start(ctx, "ProcessTorrent", trace.WithAttributes(
		attribute.String("torrent.id", id.String()),
		attribute.Bool("dry_run", p.DryRun),
	))
	result := metrics.ResultFailed
	defer func() {
		p.Metrics.TorrentDone(result)
		span.SetAttributes(attribute.String("result", result))
		endSpan(span, err)
	}()

	pl, err := p.fetchPlan(ctx, id)
	if err != nil {
		return
	}
	t := pl.torrent
	span.SetAttributes(
		attribute.String("torrent.name", t.Name),
		attribute.String("torrent.hash", t.HashString),
		attribute.Int("torrent.piece_count", t.PieceCount),
	)
	p.printf(">>> PROCESSING TORRENT: %q (hash: %v id: %v)", t.Name, t.HashString, t.ID)
	p.printf("%v", pl.summary)
	if pl.nothingToDo() {
		p.printf("Every downloaded piece is wanted. Nothing to do.")
		result = metrics.ResultNothingToDo
		return
	}
	dir, err := p.downloadDir(ctx, t)
	if err != nil {
		return
	}
	if p.DryRun {
		p.describe(pl)
		result = metrics.ResultDryRun
		return
	}

	wasRunning := t.Status != transmission.StatusStopped
	if wasRunning {
		pl, err = p.quiesce(ctx, id)
		if err != nil {
			return
		}
		if pl.nothingToDo() {
			p.printf("Nothing left to do after stopping.")
			result = metrics.ResultNothingToDo
			err = p.resume(ctx, id)
			return
		}
	}

	err = p.reclaim(ctx, dir, pl)
	if err != nil {
		p.verifyAfterFailure(ctx, id)
		return
	}
	err = p.verify(ctx, id, pl)
	if err != nil {
		return
	}
	result = metrics.ResultReclaimed
	if wasRunning {
		err = p.resume(ctx, id)
	}
	return
}

func (p *Processor) describe(pl plan) {
	for i, a := range pl.actions {
		f := pl.layout.Files[i]
		switch a.Kind {
		case pieces.Delete:
			p.printf("Would remove: %s", f.Name)
		case pieces.Trim:
			p.printf(
				"Would turn into partial: %s (keeping first %v and last %v bytes)",
				f.Name, a.KeepFirstBytes, a.KeepLastBytes)
		}
	}
}

// Stops the torrent and waits for it to settle, then plans again, as pieces may have completed in
// the meantime.
func (p *Processor) quiesce(ctx context.Context, id transmission.ID) (pl plan, err error) {
	ctx, span := tracer.Start(ctx, "quiesce")
	defer func() { endSpan(span, err) }()
	logger.WithDefaultLevel(log.Debug).Printf("stopping torrent %v", id)
	err = p.Daemon.StopTorrent(ctx, id)
	if err != nil {
		err = fmt.Errorf("stopping torrent: %w", err)
		return
	}
	_, err = p.awaitStopped(ctx, id)
	if err != nil {
		return
	}
	return p.fetchPlan(ctx, id)
}

func (p *Processor) resume(ctx context.Context, id transmission.ID) error {
	logger.WithDefaultLevel(log.Debug).Printf("starting torrent %v", id)
	err := p.Daemon.StartTorrent(ctx, id)
	if err != nil {
		return fmt.Errorf("starting torrent: %w", err)
	}
	return nil
}

func (p *Processor) reclaim(ctx context.Context, dir storage.Dir, pl plan) (err error) {
	ctx, span := tracer.Start(ctx, "reclaim", trace.WithAttributes(attribute.String("dir", dir.Root)))
	defer func() { endSpan(span, err) }()
	var removed, trimmed int
	defer func() {
		span.SetAttributes(attribute.Int("files.removed", removed), attribute.Int("files.trimmed", trimmed))
	}()
	for i, a := range pl.actions {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		f := pl.layout.Files[i]
		switch a.Kind {
		case pieces.Delete:
			p.printf("Removing: %s", f.Name)
			var res storage.RemoveResult
			res, err = dir.Remove(f.Name)
			if err != nil {
				return fmt.Errorf("removing %q: %w", f.Name, err)
			}
			if len(res.Removed) != 0 {
				removed++
				p.Metrics.FileRemoved(res.Bytes)
			}
		case pieces.Trim:
			p.printf("Turning into partial: %s", f.Name)
			var res storage.TrimResult
			res, err = dir.Trim(f.Name, a.KeepFirstBytes, a.KeepLastBytes)
			if err != nil {
				return fmt.Errorf("turning %q into partial: %w", f.Name, err)
			}
			trimmed++
			p.Metrics.FileTrimmed(res.Dropped)
		}
	}
	return nil
}

// Partial changes are on disk, so the daemon must not go on trusting its old piece state. Errors
// here would hide the original failure, so they're only logged.
func (p *Processor) verifyAfterFailure(ctx context.Context, id transmission.ID) {
	err := p.Daemon.VerifyTorrent(context.WithoutCancel(ctx), id)
	if err != nil {
		logger.WithDefaultLevel(log.Debug).Printf("verifying torrent %v after failure: %v", id, err)
	}
}

// Has the daemon re-check the torrent's data, and confirms every piece that was present and wanted
// still is.
func (p *Processor) verify(ctx context.Context, id transmission.ID, before plan) (err error) {
	ctx, span := tracer.Start(ctx, "verify")
	defer func() { endSpan(span, err) }()
	p.printf("Verifying torrent")
	err = p.Daemon.VerifyTorrent(ctx, id)
	if err != nil {
		return fmt.Errorf("verifying torrent: %w", err)
	}
	t, err := p.awaitVerified(ctx, id)
	if err != nil {
		return
	}
	after, err := bitfield.DecodeBase64(t.Pieces, before.torrent.PieceCount)
	if err != nil {
		return fmt.Errorf("decoding present pieces after verification: %w", err)
	}
	lost := before.presentWanted().AndNot(pieces.SetFromBools(after))
	if !lost.IsEmpty() {
		return fmt.Errorf("%w: %v wanted pieces lost: %v", ErrCorruptionDetected, lost.Len(), formatPieceList(lost.Slice()))
	}
	logger.WithDefaultLevel(log.Debug).Printf(
		"torrent %v verified, %v pieces present", id, pieces.SetFromBools(after).Len())
	return nil
}

const maxListedPieces = 20

func formatPieceList(ps []int) string {
	var sb strings.Builder
	for i, pi := range ps {
		if i == maxListedPieces {
			fmt.Fprintf(&sb, " and %v more", len(ps)-i)
			break
		}
		if i != 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, pi)
	}
	return sb.String()
}
