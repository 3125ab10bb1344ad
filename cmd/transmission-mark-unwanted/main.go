// Marks files as unwanted in the Transmission torrents they belong to. File paths are read from
// standard input, one per line, relative to the download directory.
//
// Example run:
// $ find /downloads/debian-12 -name '*.iso' -printf '%P\n' | sed 's|^|debian-12/|' | transmission-mark-unwanted
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/log"

	deleteunwanted "github.com/dechamps/transmission-delete-unwanted"
	"github.com/dechamps/transmission-delete-unwanted/transmission"
)

type args struct {
	TransmissionURL string `arg:"--transmission-url,env:TRANSMISSION_URL" default:"http://127.0.0.1:9091" help:"Transmission RPC URL"`
}

func (args) Description() string {
	return "Given file paths (one per line, relative to the download directory) on standard input, " +
		"marks the files as unwanted in the corresponding Transmission torrents."
}

func main() {
	if err := mainErr(); err != nil {
		log.Levelf(log.Error, "error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	var flags args
	arg.MustParse(&flags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cl, err := transmission.New(flags.TransmissionURL)
	if err != nil {
		return err
	}
	defer cl.Close()
	return deleteunwanted.MarkUnwanted(ctx, cl, os.Stdin)
}
