package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

type ResumePolicy string

const (
	// ResumeReuse keeps a partial file across attempts and restarts and
	// continues it with a Range request.
	ResumeReuse ResumePolicy = "reuse"
	// ResumeDiscard deletes any partial file before each attempt.
	ResumeDiscard ResumePolicy = "discard"
)

func ParseResumePolicy(s string) (ResumePolicy, error) {
	switch ResumePolicy(strings.ToLower(s)) {
	case "", ResumeReuse:
		return ResumeReuse, nil
	case ResumeDiscard:
		return ResumeDiscard, nil
	}
	return "", fmt.Errorf("unknown resume policy %q", s)
}

const partSuffix = ".part"

type Options struct {
	Resume         ResumePolicy
	ConnectTimeout time.Duration
	// ReadTimeout aborts a transfer that receives no bytes for this long.
	ReadTimeout time.Duration
	Signer      SignerResolver
	Client      *http.Client
}

// Progress receives cumulative bytes written and the total when known (else -1).
type Progress func(done, total int64)

type Fetcher struct {
	dir    string
	opts   Options
	client *http.Client
}

func NewFetcher(dir string, opts Options) (*Fetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if opts.Resume == "" {
		opts.Resume = ResumeReuse
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	client := opts.Client
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
		tr.TLSHandshakeTimeout = opts.ConnectTimeout
		tr.ResponseHeaderTimeout = opts.ReadTimeout
		client = &http.Client{Transport: tr}
	}
	return &Fetcher{dir: dir, opts: opts, client: client}, nil
}

func (f *Fetcher) finalPath(name string) string { return filepath.Join(f.dir, filepath.Base(name)) }

// Discard removes both the partial and the final file for name.
func (f *Fetcher) Discard(name string) {
	p := f.finalPath(name)
	_ = os.Remove(p + partSuffix)
	_ = os.Remove(p)
}

// Fetch downloads url into the download dir under name and returns the final
// path. Data goes to name+".part" and is renamed only once complete.
func (f *Fetcher) Fetch(ctx context.Context, url, name string, expectSize int64, progress Progress) (string, error) {
	final := f.finalPath(name)
	part := final + partSuffix
	if f.opts.Resume == ResumeDiscard {
		_ = os.Remove(part)
	}
	if expectSize > 0 {
		if err := ensureSpace(f.dir, expectSize); err != nil {
			return "", &TransportError{Op: "check free space", Err: err}
		}
	}

	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}
	if expectSize > 0 && offset > expectSize {
		_ = os.Remove(part)
		offset = 0
	}
	if expectSize > 0 && offset == expectSize {
		if err := os.Rename(part, final); err != nil {
			return "", &TransportError{Op: "rename", Err: err}
		}
		return final, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &TransportError{Op: "build request", Err: err}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &TransportError{Op: "get " + url, Err: err}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusOK:
		// server ignored the range; start over
		offset = 0
		flags |= os.O_TRUNC
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_ = os.Remove(part)
		return "", &TransportError{Op: "resume", Err: fmt.Errorf("server rejected range at offset %d", offset)}
	default:
		return "", &TransportError{Op: "get " + url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	out, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return "", &TransportError{Op: "open partial", Err: err}
	}
	body := newStallReader(resp.Body, f.opts.ReadTimeout, cancel)
	defer body.stop()
	written, copyErr := io.Copy(out, &progressReader{r: body, done: offset, total: total, fn: progress})
	closeErr := out.Close()
	if copyErr != nil {
		if body.stalled.Load() {
			copyErr = fmt.Errorf("no data for %s: %w", f.opts.ReadTimeout, copyErr)
		}
		return "", &TransportError{Op: "read body", Err: copyErr}
	}
	if closeErr != nil {
		return "", &TransportError{Op: "close partial", Err: closeErr}
	}
	if total >= 0 && offset+written != total {
		return "", &TransportError{Op: "read body", Err: io.ErrUnexpectedEOF}
	}
	if err := os.Rename(part, final); err != nil {
		return "", &TransportError{Op: "rename", Err: err}
	}
	return final, nil
}

// FetchVerified fetches and verifies. On IntegrityError both the partial and
// the final file are removed.
func (f *Fetcher) FetchVerified(ctx context.Context, url, name string, exp Expect, progress Progress, verifying func()) (Artifact, error) {
	path, err := f.Fetch(ctx, url, name, exp.Size, progress)
	if err != nil {
		return Artifact{}, err
	}
	if verifying != nil {
		verifying()
	}
	art, err := Verify(path, exp, f.opts.Signer)
	var ie *IntegrityError
	if errors.As(err, &ie) {
		f.Discard(name)
	}
	return art, err
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}

// stallReader cancels the request when no bytes arrive within timeout.
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

func newStallReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{r: r, timeout: timeout}
	s.timer = time.AfterFunc(timeout, func() {
		s.stalled.Store(true)
		cancel()
	})
	return s
}

func (s *stallReader) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() { s.timer.Stop() }
