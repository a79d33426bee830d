package socialgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

// NeynarClient checks Farcaster actions through the Neynar v2 API using the
// viewer_context block the API attaches for a given viewer_fid.
type NeynarClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Checker = (*NeynarClient)(nil)

func NewNeynarClient(baseURL, apiKey string, rps float64, timeout time.Duration) *NeynarClient {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &NeynarClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type viewerContext struct {
	Following bool `json:"following"`
	Liked     bool `json:"liked"`
	Recasted  bool `json:"recasted"`
}

func (c *NeynarClient) CheckAction(ctx context.Context, participantID string, kind domain.ActionKind, target domain.TargetData) (Outcome, error) {
	fid, err := domain.ParseFID(participantID)
	if err != nil {
		return NotSatisfied, err
	}
	subject := strings.TrimSpace(target.For(kind))
	if subject == "" {
		return NotSatisfied, fmt.Errorf("no target for %s", kind)
	}
	viewer := strconv.FormatUint(fid, 10)

	switch kind {
	case domain.ActionFollowUser:
		var resp struct {
			User struct {
				ViewerContext viewerContext `json:"viewer_context"`
			} `json:"user"`
		}
		q := url.Values{"username": {strings.TrimPrefix(subject, "@")}, "viewer_fid": {viewer}}
		if out, ok, err := c.get(ctx, "/v2/farcaster/user/by_username", q, &resp); !ok {
			return out, err
		}
		return fromBool(resp.User.ViewerContext.Following), nil

	case domain.ActionLikeCast, domain.ActionRecastCast:
		var resp struct {
			Cast struct {
				ViewerContext viewerContext `json:"viewer_context"`
			} `json:"cast"`
		}
		q := url.Values{"identifier": {subject}, "type": {castIdentifierType(subject)}, "viewer_fid": {viewer}}
		if out, ok, err := c.get(ctx, "/v2/farcaster/cast", q, &resp); !ok {
			return out, err
		}
		if kind == domain.ActionLikeCast {
			return fromBool(resp.Cast.ViewerContext.Liked), nil
		}
		return fromBool(resp.Cast.ViewerContext.Recasted), nil

	case domain.ActionJoinChannel:
		var resp struct {
			Channel struct {
				ViewerContext viewerContext `json:"viewer_context"`
			} `json:"channel"`
		}
		q := url.Values{"id": {strings.TrimPrefix(subject, "/")}, "viewer_fid": {viewer}}
		if out, ok, err := c.get(ctx, "/v2/farcaster/channel", q, &resp); !ok {
			return out, err
		}
		return fromBool(resp.Channel.ViewerContext.Following), nil
	}
	return NotSatisfied, fmt.Errorf("unsupported action kind %q", kind)
}

// get decodes a 200 response into dst and reports ok. Otherwise it returns the
// outcome to report: NotSatisfied for a missing target, Unknown for anything
// transient.
func (c *NeynarClient) get(ctx context.Context, path string, q url.Values, dst any) (Outcome, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Unknown, false, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return Unknown, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Unknown, false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Unknown, false, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return NotSatisfied, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Unknown, false, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Unknown, false, fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return Unknown, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return Satisfied, true, nil
}

func fromBool(ok bool) Outcome {
	if ok {
		return Satisfied
	}
	return NotSatisfied
}

func castIdentifierType(identifier string) string {
	if strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://") {
		return "url"
	}
	return "hash"
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

