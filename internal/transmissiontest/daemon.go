// Package transmissiontest is an in-process stand-in for a Transmission daemon. It serves torrents
// whose files live in a real directory, and verifies pieces by hashing what's on disk, so reclaiming
// space can be checked end to end.
package transmissiontest

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"

	"github.com/dechamps/transmission-delete-unwanted/bitfield"
	"github.com/dechamps/transmission-delete-unwanted/storage"
	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

type File struct {
	// Relative to the torrent's directory.
	Path   string
	Length int64
	// Unwanted files are marked so from the start, without touching their data.
	Unwanted bool
	// Not written to disk, so its pieces start out missing.
	Absent bool
	// Written as a partial file.
	Part bool
}

type Torrent struct {
	Name      string
	PieceSize int64
	Files     []File
	// Whether the torrent starts out seeding rather than stopped.
	Running bool
}

type torrent struct {
	id        int64
	hash      string
	name      string
	pieceSize int64
	files     []File
	// Original content, concatenated.
	data    []byte
	hashes  [][sha1.Size]byte
	wanted  []bool
	present []bool
	status  transmission.Status

	// Polls remaining before a pending transition completes.
	lag             int
	stopping        bool
	verifying       bool
	statusAfterWait transmission.Status
}

func (t *torrent) pieceCount() int {
	return len(t.hashes)
}

func (t *torrent) matches(id transmission.ID) bool {
	return id == transmission.NumericID(t.id) || id == transmission.HashID(t.hash)
}

func (t *torrent) fileName(i int) string {
	return t.name + "/" + t.files[i].Path
}

type Daemon struct {
	DownloadDir string
	// The number of polls a torrent stays in each transitional status.
	StatusLag int
	// Called with the torrent id when verification is requested, before anything else happens.
	OnVerify func(id int64)
	// If it returns an error for a method, the call fails with it.
	Fail func(method string, id transmission.ID) error

	mu       sync.Mutex
	torrents []*torrent
	calls    []string
}

func New(downloadDir string) *Daemon {
	return &Daemon{DownloadDir: downloadDir}
}

// Writes the torrent's data under the download directory, and returns the new torrent's id.
func (d *Daemon) AddTorrent(layout Torrent) (id int64, err error) {
	if layout.PieceSize <= 0 {
		return 0, fmt.Errorf("piece size %v", layout.PieceSize)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id = int64(len(d.torrents) + 1)
	t := &torrent{
		id:        id,
		name:      layout.Name,
		pieceSize: layout.PieceSize,
		files:     layout.Files,
		status:    transmission.StatusStopped,
	}
	if layout.Running {
		t.status = transmission.StatusSeeding
	}
	sum := sha1.Sum([]byte(layout.Name))
	t.hash = hex.EncodeToString(sum[:])
	r := rand.New(rand.NewPCG(uint64(id), 0))
	var buf bytes.Buffer
	for i, f := range layout.Files {
		data := make([]byte, f.Length)
		for j := range data {
			data[j] = byte(r.UintN(256))
		}
		buf.Write(data)
		t.wanted = append(t.wanted, !f.Unwanted)
		if f.Absent {
			continue
		}
		name := t.fileName(i)
		if f.Part {
			name += storage.PartSuffix
		}
		err = writeFile(filepath.Join(d.DownloadDir, filepath.FromSlash(name)), data)
		if err != nil {
			return
		}
	}
	t.data = buf.Bytes()
	for off := int64(0); off < int64(len(t.data)); off += t.pieceSize {
		t.hashes = append(t.hashes, sha1.Sum(t.data[off:min(off+t.pieceSize, int64(len(t.data)))]))
	}
	t.present = d.check(t)
	d.torrents = append(d.torrents, t)
	return
}

func writeFile(p string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// The original bytes of a torrent file, for comparing against what's left on disk.
func (d *Daemon) FileData(id int64, file int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.torrents[id-1]
	var off int64
	for _, f := range t.files[:file] {
		off += f.Length
	}
	return t.data[off : off+t.files[file].Length]
}

// Present pieces as of the last verification.
func (d *Daemon) Present(id int64) []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.torrents[id-1].present...)
}

func (d *Daemon) Status(id int64) transmission.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.torrents[id-1].status
}

func (d *Daemon) SetStatus(id int64, s transmission.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.torrents[id-1].status = s
}

// The methods called so far, in order.
func (d *Daemon) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Daemon) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Reads a file's data the way the daemon does: the complete name first, then the partial one.
func (d *Daemon) openFile(name string) (*os.File, error) {
	p := filepath.Join(d.DownloadDir, filepath.FromSlash(name))
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.Open(p + storage.PartSuffix)
	}
	return f, err
}

// Hashes every piece from what's on disk. Missing or short files fail the pieces they cover.
func (d *Daemon) check(t *torrent) []bool {
	onDisk := make([]byte, len(t.data))
	have := make([]bool, len(t.data))
	var off int64
	for i, f := range t.files {
		func() {
			file, err := d.openFile(t.fileName(i))
			if err != nil {
				return
			}
			defer file.Close()
			n, _ := io.ReadFull(file, onDisk[off:off+f.Length])
			for j := off; j < off+int64(n); j++ {
				have[j] = true
			}
		}()
		off += f.Length
	}
	present := make([]bool, t.pieceCount())
	for i := range present {
		begin := int64(i) * t.pieceSize
		end := min(begin+t.pieceSize, int64(len(t.data)))
		complete := true
		for _, h := range have[begin:end] {
			complete = complete && h
		}
		present[i] = complete && sha1.Sum(onDisk[begin:end]) == t.hashes[i]
	}
	return present
}

func (d *Daemon) record(method string, id transmission.ID) error {
	d.calls = append(d.calls, method)
	if d.Fail != nil {
		return d.Fail(method, id)
	}
	return nil
}

// Records the call and finds the torrent it's for.
func (d *Daemon) call(method string, id transmission.ID) (*torrent, error) {
	err := d.record(method, id)
	if err != nil {
		return nil, err
	}
	for _, t := range d.torrents {
		if t.matches(id) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("torrent %v: %w", id, transmission.ErrTorrentNotFound)
}

// Advances any pending transition by one poll.
func (d *Daemon) tick(t *torrent) {
	if !t.stopping && !t.verifying {
		return
	}
	if t.lag > 0 {
		t.lag--
		if t.verifying && t.status == transmission.StatusCheckWait {
			t.status = transmission.StatusChecking
		}
		return
	}
	if t.verifying {
		t.present = d.check(t)
	}
	t.status = t.statusAfterWait
	t.stopping = false
	t.verifying = false
}

func (d *Daemon) torrentInfo(t *torrent) transmission.Torrent {
	ret := transmission.Torrent{
		ID:          t.id,
		HashString:  t.hash,
		Name:        t.name,
		DownloadDir: d.DownloadDir,
		Wanted:      append(transmission.BoolList(nil), t.wanted...),
		Pieces:      bitfield.EncodeBase64(t.present),
		PieceCount:  t.pieceCount(),
		PieceSize:   t.pieceSize,
		Status:      t.status,
	}
	for i, f := range t.files {
		ret.Files = append(ret.Files, transmission.File{Name: t.fileName(i), Length: f.Length})
	}
	return ret
}

func (d *Daemon) GetTorrent(ctx context.Context, id transmission.ID, fields []transmission.Field) (ret transmission.Torrent, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.call("torrent-get", id)
	if err != nil {
		return
	}
	d.tick(t)
	return d.torrentInfo(t), nil
}

func (d *Daemon) GetTorrents(ctx context.Context, fields []transmission.Field) (ret []transmission.Torrent, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	err = d.record("torrent-get", transmission.ID{})
	if err != nil {
		return
	}
	for _, t := range d.torrents {
		ret = append(ret, d.torrentInfo(t))
	}
	return
}

func (d *Daemon) StopTorrent(ctx context.Context, id transmission.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.call("torrent-stop", id)
	if err != nil {
		return err
	}
	switch {
	case t.verifying:
		t.statusAfterWait = transmission.StatusStopped
	case t.status != transmission.StatusStopped:
		t.stopping = true
		t.lag = d.StatusLag
		t.statusAfterWait = transmission.StatusStopped
	}
	return nil
}

func (d *Daemon) StartTorrent(ctx context.Context, id transmission.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.call("torrent-start", id)
	if err != nil {
		return err
	}
	t.stopping = false
	if t.verifying {
		t.statusAfterWait = transmission.StatusSeeding
		return nil
	}
	t.status = transmission.StatusSeeding
	return nil
}

// Verification is queued straight away, and completes once StatusLag polls have seen it in
// progress.
func (d *Daemon) VerifyTorrent(ctx context.Context, id transmission.ID) error {
	d.mu.Lock()
	t, err := d.call("torrent-verify", id)
	onVerify := d.OnVerify
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if onVerify != nil {
		onVerify(t.id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !t.verifying {
		t.statusAfterWait = t.status
		if t.stopping {
			t.statusAfterWait = transmission.StatusStopped
			t.stopping = false
		}
	}
	t.verifying = true
	t.lag = d.StatusLag
	t.status = transmission.StatusCheckWait
	return nil
}

func (d *Daemon) ChangeTorrent(ctx context.Context, id transmission.ID, changes transmission.TorrentChanges) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.call("torrent-set", id)
	if err != nil {
		return err
	}
	for _, i := range changes.FilesUnwanted {
		if i < 0 || i >= len(t.files) {
			return transmission.RPCError{Method: "torrent-set", Result: fmt.Sprintf("file index %v out of range", i)}
		}
	}
	for _, i := range changes.FilesUnwanted {
		t.wanted[i] = false
	}
	return nil
}

func (d *Daemon) GetSession(ctx context.Context) (transmission.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.record("session-get", transmission.ID{})
	return transmission.Session{DownloadDir: d.DownloadDir}, err
}
