// Deletes the parts of a Transmission torrent's data that belong only to unwanted files.
//
// Example run:
// $ transmission-delete-unwanted --transmission-url http://127.0.0.1:9091 --torrent-id 3
// >>> PROCESSING TORRENT: "debian-12" (hash: 295184e2e91c10c2b1c35c2890a8394ff53d3be7 id: 3)
// Wanted: 1024 pieces (256 MiB); present: 1536 pieces (384 MiB); present and not wanted: 512 pieces (128 MiB)
// Removing: debian-12/extras.iso
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/log"

	deleteunwanted "github.com/dechamps/transmission-delete-unwanted"
	"github.com/dechamps/transmission-delete-unwanted/internal/metrics"
	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

type args struct {
	TransmissionURL string            `arg:"--transmission-url,env:TRANSMISSION_URL" default:"http://127.0.0.1:9091" help:"Transmission RPC URL, e.g. http+unix://%2Frun%2Ftransmission%2Fsocket/transmission/rpc"`
	TorrentID       []transmission.ID `arg:"--torrent-id,separate" help:"ID or info hash of a torrent to process, repeatable; every torrent if omitted"`
	DryRun          bool              `arg:"--dry-run" help:"report what would be removed without changing anything"`
	DownloadDir     string            `arg:"--download-dir" help:"where torrent data is, if not where the daemon reports it"`
	StopTimeout     time.Duration     `arg:"--stop-timeout" default:"1m" help:"how long to wait for a torrent to stop"`
	VerifyTimeout   time.Duration     `arg:"--verify-timeout" default:"6h" help:"how long to wait for a torrent to be verified"`
	MetricsTextfile string            `arg:"--metrics-textfile" help:"write Prometheus metrics to this file on exit"`
}

func (args) Description() string {
	return "Deletes unwanted files from Transmission torrents, keeping the data of pieces shared with wanted files."
}

func main() {
	if err := mainErr(); err != nil {
		log.Levelf(log.Error, "error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() (err error) {
	var flags args
	arg.MustParse(&flags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := transmission.New(flags.TransmissionURL)
	if err != nil {
		return
	}
	defer cl.Close()

	m := metrics.New()
	if flags.MetricsTextfile != "" {
		defer func() {
			writeErr := m.WriteTextfile(flags.MetricsTextfile)
			if writeErr != nil {
				log.Levelf(log.Warning, "writing metrics to %q: %v", flags.MetricsTextfile, writeErr)
			}
		}()
	}

	poll := deleteunwanted.DefaultPollConfig()
	poll.StopTimeout = flags.StopTimeout
	poll.VerifyTimeout = flags.VerifyTimeout
	p := deleteunwanted.Processor{
		Daemon:      cl,
		DownloadDir: flags.DownloadDir,
		DryRun:      flags.DryRun,
		Poll:        poll,
		Out:         os.Stdout,
		Metrics:     m,
	}
	return p.ProcessTorrents(ctx, flags.TorrentID)
}
