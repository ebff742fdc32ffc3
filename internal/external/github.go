package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v67/github"
	"github.com/rs/dnscache"

	"github.com/eugener/libris/internal/circuitbreaker"
)

const (
	upstreamGitHub = "github"

	// maxDocumentBody caps how much of an upstream response is relayed.
	maxDocumentBody = 4 << 20
)

// ErrUpstream reports that the upstream could not be reached or read.
var ErrUpstream = errors.New("upstream unavailable")

// Recorder receives upstream call measurements. A status of 0 means no
// response was received.
type Recorder interface {
	ObserveUpstream(upstream string, status int, elapsed time.Duration)
}

// Document is an upstream response relayed as is.
type Document struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// GitHubOptions configures a GitHub client.
type GitHubOptions struct {
	BaseURL string // defaults to https://api.github.com
	Repo    string // owner/name
	Token   string // optional personal access token
	Timeout time.Duration
	Breaker *circuitbreaker.Breaker // nil = calls are never short-circuited
}

// GitHub fetches repository documents from the GitHub REST API.
type GitHub struct {
	client   *github.Client
	repo     string
	breaker  *circuitbreaker.Breaker
	recorder Recorder
}

// NewGitHub creates a GitHub client. resolver and recorder may be nil.
func NewGitHub(opts GitHubOptions, resolver *dnscache.Resolver, recorder Recorder) (*GitHub, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("github: base url: %w", err)
	}

	client := github.NewClient(&http.Client{
		Transport: withToken(NewTransport(resolver), opts.Token),
		Timeout:   opts.Timeout,
	})
	client.BaseURL = base
	client.UserAgent = "libris"

	return &GitHub{
		client:   client,
		repo:     strings.Trim(opts.Repo, "/"),
		breaker:  opts.Breaker,
		recorder: recorder,
	}, nil
}

// RepoDocument fetches the repository resource and returns the upstream
// status and body untouched. Only transport failures and an open breaker
// produce an error.
func (g *GitHub) RepoDocument(ctx context.Context) (*Document, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		return nil, fmt.Errorf("github: %w: %w", ErrUpstream, circuitbreaker.ErrOpen)
	}

	req, err := g.client.NewRequest(http.MethodGet, "repos/"+g.repo, nil)
	if err != nil {
		g.record(0, err)
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	start := time.Now()
	// BareDo reports non-2xx statuses as errors but still hands back the
	// response with its body; those are relayed, not failed.
	resp, err := g.client.BareDo(ctx, req)
	if resp == nil || resp.Response == nil {
		if err == nil {
			err = errors.New("no response")
		}
		g.observe(0, start)
		g.record(0, err)
		return nil, fmt.Errorf("github: %w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBody))
	g.observe(resp.StatusCode, start)
	g.record(resp.StatusCode, err)
	if err != nil {
		return nil, fmt.Errorf("github: %w: read body: %w", ErrUpstream, err)
	}
	return &Document{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (g *GitHub) observe(status int, start time.Time) {
	if g.recorder != nil {
		g.recorder.ObserveUpstream(upstreamGitHub, status, time.Since(start))
	}
}

func (g *GitHub) record(status int, err error) {
	if g.breaker != nil {
		g.breaker.Record(circuitbreaker.Weight(status, err))
	}
}
