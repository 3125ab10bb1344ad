/*
Package deleteunwanted reclaims disk space from torrents in a Transmission daemon whose files have
been marked unwanted, without corrupting pieces still shared with wanted files.

Files are removed outright where none of their pieces are wanted. A file that shares a boundary
piece with a wanted neighbour is instead rewritten as a partial file keeping just the bytes of that
piece. The torrent is stopped around the change and re-verified afterwards, and a verification
that loses any previously complete wanted piece is reported as corruption.

	cl, _ := transmission.New("http://127.0.0.1:9091")
	defer cl.Close()
	p := deleteunwanted.Processor{Daemon: cl, Out: os.Stdout, Poll: deleteunwanted.DefaultPollConfig()}
	err := p.ProcessTorrents(ctx, nil)
*/
package deleteunwanted
