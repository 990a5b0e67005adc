package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imroc/req/v3"

	"github.com/driftbox/driftbox/internal/version"
)

const (
	epHealth = "/api/v1/health"
	epFile   = "/api/v1/repo/file"
	epCommit = "/api/v1/repo/commit"

	headerKnownRevision = "X-Known-Revision"

	contentCacheSize   = 256
	connectivityProbe  = 5 * time.Second
	defaultHTTPTimeout = 60 * time.Second
)

// HTTPGateway talks to the hosted repository over HTTP. Fetches are
// revalidated against the last revision seen per path, so an unchanged file
// costs a 304 instead of a body transfer.
type HTTPGateway struct {
	client *req.Client

	mu      sync.Mutex
	lastRev map[string]string

	// revision -> content, shared across paths
	contents *lru.Cache[string, []byte]
}

var _ Gateway = (*HTTPGateway)(nil)

type HTTPGatewayConfig struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	RetryCount int
	Debug      bool
}

func NewHTTPGateway(cfg HTTPGatewayConfig) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoServerURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}

	contents, err := lru.New[string, []byte](contentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("content cache: %w", err)
	}

	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetUserAgent("DriftBoxClient/"+version.Version).
		SetCommonRetryCount(cfg.RetryCount).
		SetCommonRetryBackoffInterval(time.Second, 10*time.Second).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if cfg.AuthToken != "" {
		client.SetCommonBearerAuthToken(cfg.AuthToken)
	}
	if cfg.Debug {
		client.DevMode()
	}

	return &HTTPGateway{
		client:   client,
		lastRev:  make(map[string]string),
		contents: contents,
	}, nil
}

type fileResponse struct {
	Path     string `json:"path"`
	Content  []byte `json:"content"`
	Revision string `json:"revision"`
	Exists   bool   `json:"exists"`
}

func (g *HTTPGateway) FetchLatest(ctx context.Context, path string) (*FetchResult, error) {
	g.mu.Lock()
	knownRev := g.lastRev[path]
	g.mu.Unlock()

	var out fileResponse
	r := g.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetSuccessResult(&out)
	if knownRev != "" {
		r.SetHeader(headerKnownRevision, knownRev)
	}

	resp, err := r.Get(epFile)
	if err == nil && resp.StatusCode == http.StatusNotModified {
		if content, ok := g.contents.Get(knownRev); ok {
			return &FetchResult{Path: path, Content: content, Revision: knownRev, Exists: true}, nil
		}
		// revalidation hit but the cached body was evicted, refetch in full
		g.forget(path)
		return g.FetchLatest(ctx, path)
	}
	if err := handleAPIError(resp, err, "fetch "+path); err != nil {
		return nil, err
	}

	if out.Exists {
		g.remember(path, out.Revision, out.Content)
	} else {
		g.forget(path)
	}

	return &FetchResult{
		Path:     path,
		Content:  out.Content,
		Revision: out.Revision,
		Exists:   out.Exists,
	}, nil
}

type commitRequest struct {
	Message string       `json:"message,omitempty"`
	Files   []CommitFile `json:"files"`
}

type commitResponse struct {
	Revision string `json:"revision"`
}

func (g *HTTPGateway) Commit(ctx context.Context, files []CommitFile, message string) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("commit: empty batch")
	}

	var out commitResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(&commitRequest{Message: message, Files: files}).
		SetSuccessResult(&out).
		Post(epCommit)
	if err := handleAPIError(resp, err, "commit"); err != nil {
		return "", err
	}

	for _, f := range files {
		if f.Action == ActionDelete {
			g.forget(f.Path)
			continue
		}
		g.remember(f.Path, out.Revision, f.Content)
	}
	return out.Revision, nil
}

func (g *HTTPGateway) CheckConnectivity(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, connectivityProbe)
	defer cancel()

	resp, err := g.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		Get(epHealth)
	return err == nil && resp.IsSuccessState()
}

func (g *HTTPGateway) remember(path, revision string, content []byte) {
	g.mu.Lock()
	g.lastRev[path] = revision
	g.mu.Unlock()
	g.contents.Add(revision, content)
}

func (g *HTTPGateway) forget(path string) {
	g.mu.Lock()
	delete(g.lastRev, path)
	g.mu.Unlock()
}
