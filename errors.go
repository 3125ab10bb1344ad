package deleteunwanted

import (
	"errors"
)

var (
	// Verification after reclaiming lost pieces that were complete and wanted beforehand. This
	// should never happen, and the daemon's pieces and files need inspecting.
	ErrCorruptionDetected = errors.New(
		"corruption detected: please collect the daemon's logs and the torrent's file list, and report a bug")
	// The daemon didn't reach the awaited status in time.
	ErrPollTimeout = errors.New("timed out waiting for torrent status")
)

var errStillWaiting = errors.New("still waiting")
