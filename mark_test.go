package deleteunwanted

import (
	"context"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/dechamps/transmission-delete-unwanted/internal/transmissiontest"
	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

func twoFileTorrent(name string) transmissiontest.Torrent {
	return transmissiontest.Torrent{
		Name:      name,
		PieceSize: 4,
		Files: []transmissiontest.File{
			{Path: "test0.txt", Length: 4},
			{Path: "test1.txt", Length: 4},
		},
	}
}

func newMarkDaemon(t *testing.T) (d *transmissiontest.Daemon, first, second int64) {
	d = transmissiontest.New(t.TempDir())
	var err error
	first, err = d.AddTorrent(twoFileTorrent("t1"))
	qt.Assert(t, qt.IsNil(err))
	second, err = d.AddTorrent(twoFileTorrent("t2"))
	qt.Assert(t, qt.IsNil(err))
	return
}

func filesWanted(t *testing.T, d Daemon, id int64) transmission.BoolList {
	tor, err := d.GetTorrent(context.Background(), transmission.NumericID(id), []transmission.Field{transmission.FieldWanted})
	qt.Assert(t, qt.IsNil(err))
	return tor.Wanted
}

func TestMarkUnwantedEmptyInput(t *testing.T) {
	d, first, _ := newMarkDaemon(t)
	qt.Assert(t, qt.IsNil(MarkUnwanted(context.Background(), d, strings.NewReader(""))))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, first), transmission.BoolList{true, true}))
	qt.Check(t, qt.Not(qt.SliceContains(d.Calls(), "torrent-set")))
}

func TestMarkUnwantedOneFile(t *testing.T) {
	d, first, second := newMarkDaemon(t)
	err := MarkUnwanted(context.Background(), d, strings.NewReader("t1/test1.txt\n"))
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, first), transmission.BoolList{true, false}))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, second), transmission.BoolList{true, true}))
}

func TestMarkUnwantedBatchesPerTorrent(t *testing.T) {
	d, first, second := newMarkDaemon(t)
	d.ResetCalls()
	err := MarkUnwanted(context.Background(), d, strings.NewReader(
		"t2/test0.txt\r\n\nt1/test1.txt\nt2/test1.txt\nt2/test0.txt"))
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, first), transmission.BoolList{true, false}))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, second), transmission.BoolList{false, false}))
	qt.Check(t, qt.DeepEquals(d.Calls()[:3], []string{"torrent-get", "torrent-set", "torrent-set"}))
}

func TestMarkUnwantedUnknownPathChangesNothing(t *testing.T) {
	d, first, _ := newMarkDaemon(t)
	err := MarkUnwanted(context.Background(), d, strings.NewReader("t1/test0.txt\nt3/nope\n"))
	qt.Check(t, qt.ErrorIs(err, ErrUnknownPath))
	qt.Check(t, qt.ErrorMatches(err, `.*"t3/nope"`))
	qt.Check(t, qt.DeepEquals(filesWanted(t, d, first), transmission.BoolList{true, true}))
}

// Records the order torrents are changed in.
type changeRecorder struct {
	Daemon
	changed []string
	files   [][]int
}

func (r *changeRecorder) ChangeTorrent(ctx context.Context, id transmission.ID, changes transmission.TorrentChanges) error {
	r.changed = append(r.changed, id.String())
	r.files = append(r.files, changes.FilesUnwanted)
	return r.Daemon.ChangeTorrent(ctx, id, changes)
}

func TestMarkUnwantedFirstSeenOrder(t *testing.T) {
	d, first, second := newMarkDaemon(t)
	r := &changeRecorder{Daemon: d}
	err := MarkUnwanted(context.Background(), r, strings.NewReader("t2/test1.txt\nt1/test0.txt\nt2/test0.txt\n"))
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(r.changed, []string{
		transmission.NumericID(second).String(),
		transmission.NumericID(first).String(),
	}))
	qt.Check(t, qt.DeepEquals(r.files, [][]int{{1, 0}, {0}}))
}
