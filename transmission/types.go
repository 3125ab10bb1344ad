package transmission

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Status int64

const (
	StatusStopped Status = iota
	StatusCheckWait
	StatusChecking
	StatusDownloadWait
	StatusDownloading
	StatusSeedWait
	StatusSeeding
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusCheckWait:
		return "check pending"
	case StatusChecking:
		return "checking"
	case StatusDownloadWait:
		return "download pending"
	case StatusDownloading:
		return "downloading"
	case StatusSeedWait:
		return "seed pending"
	case StatusSeeding:
		return "seeding"
	default:
		return "status " + strconv.FormatInt(int64(s), 10)
	}
}

// Whether the torrent is queued for or undergoing piece verification.
func (s Status) IsChecking() bool {
	return s == StatusCheckWait || s == StatusChecking
}

const infoHashHexLen = 40

// Identifies a torrent either by the daemon's numeric id, which is only stable for the daemon's
// lifetime, or by its hex info hash.
type ID struct {
	num  int64
	hash string
}

func NumericID(n int64) ID {
	return ID{num: n}
}

func HashID(hash string) ID {
	return ID{hash: strings.ToLower(hash)}
}

func ParseID(s string) (id ID, err error) {
	if len(s) == infoHashHexLen {
		_, err = hex.DecodeString(s)
		if err != nil {
			err = errors.Wrapf(err, "parsing torrent hash %q", s)
			return
		}
		return HashID(s), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		err = errors.Errorf("torrent id %q is neither a positive integer nor a %v character hash", s, infoHashHexLen)
		return
	}
	return NumericID(n), nil
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	if id.hash != "" {
		return id.hash
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.hash != "" {
		return json.Marshal(id.hash)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalText(b []byte) (err error) {
	*id, err = ParseID(string(b))
	return
}

// A list of flags the daemon may send as JSON booleans or as 0/1, depending on its version.
type BoolList []bool

func (bl *BoolList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}
	ret := make(BoolList, len(raw))
	for i, r := range raw {
		switch s := string(r); s {
		case "true", "1":
			ret[i] = true
		case "false", "0":
		default:
			return errors.Errorf("invalid boolean %s at index %v", s, i)
		}
	}
	*bl = ret
	return nil
}

// A torrent-get field name.
type Field string

const (
	FieldID          Field = "id"
	FieldHashString  Field = "hashString"
	FieldName        Field = "name"
	FieldDownloadDir Field = "downloadDir"
	FieldFiles       Field = "files"
	FieldWanted      Field = "wanted"
	FieldPieces      Field = "pieces"
	FieldPieceCount  Field = "pieceCount"
	FieldPieceSize   Field = "pieceSize"
	FieldStatus      Field = "status"
)

type File struct {
	// Relative to the download directory. The first component is usually the torrent name.
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

// Only the fields that were requested are set.
type Torrent struct {
	ID          int64    `json:"id"`
	HashString  string   `json:"hashString"`
	Name        string   `json:"name"`
	DownloadDir string   `json:"downloadDir"`
	Files       []File   `json:"files"`
	Wanted      BoolList `json:"wanted"`
	// Base64 bitfield of the pieces that are present and verified.
	Pieces     string `json:"pieces"`
	PieceCount int    `json:"pieceCount"`
	PieceSize  int64  `json:"pieceSize"`
	Status     Status `json:"status"`
}

type TorrentChanges struct {
	// Indexes into the torrent's file list.
	FilesUnwanted []int `json:"files-unwanted,omitempty"`
}

type Session struct {
	DownloadDir string `json:"download-dir"`
}
