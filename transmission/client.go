// Package transmission is a client for the Transmission daemon's JSON-RPC interface, covering the
// calls needed to inspect torrents, change which files are wanted, and drive piece verification.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/httptoo"
	"github.com/pkg/errors"
)

const (
	DefaultRPCPath  = "/transmission/rpc"
	SessionIDHeader = "X-Transmission-Session-Id"
	unixScheme      = "http+unix"
	resultSuccess   = "success"
)

var logger = log.Default.WithNames("transmission")

// The daemon ran the method and reported a failure.
type RPCError struct {
	Method string
	Result string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Result)
}

var ErrTorrentNotFound = errors.New("torrent not found")

type Client struct {
	url_ *url.URL
	user *url.Userinfo
	hc   *http.Client

	mu        sync.Mutex
	sessionID string
}

// Accepts http, https, and http+unix URLs. The last takes the socket path percent-encoded in place
// of the host, as in http+unix://%2Frun%2Ftransmission.sock/transmission/rpc. Credentials in the
// URL are sent with basic auth. A URL without a path gets the daemon's default RPC path.
func New(rawURL string) (cl *Client, err error) {
	cl = &Client{}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if rest, ok := strings.CutPrefix(rawURL, unixScheme+"://"); ok {
		var socketPath string
		cl.url_, socketPath, err = parseUnixURL(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", rawURL)
		}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
	} else {
		cl.url_, err = url.Parse(rawURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing transmission url")
		}
		switch cl.url_.Scheme {
		case "http", "https":
		default:
			return nil, errors.Errorf("unsupported transmission url scheme %q", cl.url_.Scheme)
		}
	}
	cl.user = cl.url_.User
	cl.url_.User = nil
	if cl.url_.Path == "" || cl.url_.Path == "/" {
		cl.url_.Path = DefaultRPCPath
	}
	cl.hc = &http.Client{Transport: transport}
	return
}

// url.Parse rejects an escaped slash in the host, so the authority is split out by hand.
func parseUnixURL(rest string) (u *url.URL, socketPath string, err error) {
	authority, path, _ := strings.Cut(rest, "/")
	var user *url.Userinfo
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfo, _ := url.Parse("http://" + authority[:at+1] + "localhost")
		if userinfo != nil {
			user = userinfo.User
		}
		authority = authority[at+1:]
	}
	socketPath, err = url.PathUnescape(authority)
	if err != nil {
		return
	}
	if socketPath == "" {
		err = errors.New("missing socket path")
		return
	}
	u, err = url.Parse("http://localhost/" + path)
	if err != nil {
		return
	}
	u.User = user
	return
}

func (cl *Client) Close() error {
	cl.hc.CloseIdleConnections()
	return nil
}

func (cl *Client) URL() *url.URL {
	return httptoo.CopyURL(cl.url_)
}

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

func (cl *Client) getSessionID() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.sessionID
}

func (cl *Client) setSessionID(id string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.sessionID = id
}

func (cl *Client) post(ctx context.Context, body []byte) (resp *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.url_.String(), bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if id := cl.getSessionID(); id != "" {
		req.Header.Set(SessionIDHeader, id)
	}
	if cl.user != nil {
		password, _ := cl.user.Password()
		req.SetBasicAuth(cl.user.Username(), password)
	}
	return cl.hc.Do(req)
}

// Calls method, decoding the response arguments into ret if it's not nil. The daemon answers an
// unknown or stale session id with 409 and the current one, after which the call is retried once.
func (cl *Client) do(ctx context.Context, method string, args, ret any) (err error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return errors.Wrapf(err, "encoding %v request", method)
	}
	var resp *http.Response
	for attempt := 0; ; attempt++ {
		resp, err = cl.post(ctx, body)
		if err != nil {
			return errors.Wrapf(err, "calling %v", method)
		}
		if resp.StatusCode != http.StatusConflict || attempt > 0 {
			break
		}
		resp.Body.Close()
		id := resp.Header.Get(SessionIDHeader)
		if id == "" {
			return errors.Errorf("calling %v: conflict response without %v", method, SessionIDHeader)
		}
		logger.WithDefaultLevel(log.Debug).Printf("got session id %q", id)
		cl.setSessionID(id)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "reading %v response", method)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("calling %v: %s: %q", method, resp.Status, bytes.TrimSpace(respBody))
	}
	var rr rpcResponse
	err = json.Unmarshal(respBody, &rr)
	if err != nil {
		return errors.Wrapf(err, "decoding %v response", method)
	}
	if rr.Result != resultSuccess {
		return RPCError{Method: method, Result: rr.Result}
	}
	if ret == nil || len(rr.Arguments) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(rr.Arguments, ret), "decoding %v arguments", method)
}

type torrentGetArgs struct {
	IDs    []ID    `json:"ids,omitempty"`
	Fields []Field `json:"fields"`
}

type torrentGetResult struct {
	Torrents []Torrent `json:"torrents"`
}

// Gets the given fields of the one torrent identified by id.
func (cl *Client) GetTorrent(ctx context.Context, id ID, fields []Field) (t Torrent, err error) {
	var res torrentGetResult
	err = cl.do(ctx, "torrent-get", torrentGetArgs{IDs: []ID{id}, Fields: fields}, &res)
	if err != nil {
		return
	}
	switch len(res.Torrents) {
	case 0:
		err = errors.Wrapf(ErrTorrentNotFound, "torrent %v", id)
	case 1:
		t = res.Torrents[0]
	default:
		err = errors.Errorf("got %v torrents for id %v", len(res.Torrents), id)
	}
	return
}

// Gets the given fields of every torrent in the daemon.
func (cl *Client) GetTorrents(ctx context.Context, fields []Field) ([]Torrent, error) {
	var res torrentGetResult
	err := cl.do(ctx, "torrent-get", torrentGetArgs{Fields: fields}, &res)
	return res.Torrents, err
}

type idsArgs struct {
	IDs []ID `json:"ids"`
}

func (cl *Client) StopTorrent(ctx context.Context, id ID) error {
	return cl.do(ctx, "torrent-stop", idsArgs{[]ID{id}}, nil)
}

func (cl *Client) StartTorrent(ctx context.Context, id ID) error {
	return cl.do(ctx, "torrent-start", idsArgs{[]ID{id}}, nil)
}

// Queues the torrent for verification. Completion shows up in its status.
func (cl *Client) VerifyTorrent(ctx context.Context, id ID) error {
	return cl.do(ctx, "torrent-verify", idsArgs{[]ID{id}}, nil)
}

type torrentSetArgs struct {
	IDs []ID `json:"ids"`
	TorrentChanges
}

func (cl *Client) ChangeTorrent(ctx context.Context, id ID, changes TorrentChanges) error {
	return cl.do(ctx, "torrent-set", torrentSetArgs{[]ID{id}, changes}, nil)
}

type sessionGetArgs struct {
	Fields []string `json:"fields"`
}

func (cl *Client) GetSession(ctx context.Context) (s Session, err error) {
	err = cl.do(ctx, "session-get", sessionGetArgs{[]string{"download-dir"}}, &s)
	return
}
