package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/pipeline"
)

const defaultMaxFetchBytes int64 = 32 * 1024 * 1024

// ErrResponseTooLarge 表示上游响应体超过该类型允许的大小。
var ErrResponseTooLarge = errors.New("upstream response too large")

// StatusError 记录上游返回的非 2xx 状态码。
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.Code)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// FetcherOptions 描述单个实体类型的回源参数。
type FetcherOptions struct {
	Kind           string
	Upstream       *url.URL
	MaxBytes       int64
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *logrus.Logger
}

// UpstreamFetcher 通过共享 http.Client 拉取图片，实现 pipeline.Fetcher。
type UpstreamFetcher struct {
	client *http.Client
	opts   FetcherOptions
}

// NewUpstreamFetcher binds the shared client to one kind's upstream.
func NewUpstreamFetcher(client *http.Client, opts FetcherOptions) *UpstreamFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxFetchBytes
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &UpstreamFetcher{client: client, opts: opts}
}

// Fetch 请求上游并返回完整响应体。网络错误、429 与 5xx 会按指数退避重试，
// 其余非 2xx 状态直接返回 *StatusError。
func (f *UpstreamFetcher) Fetch(ctx context.Context, d descriptor.Descriptor, _ pipeline.Options) ([]byte, error) {
	target, err := f.resolveURL(d)
	if err != nil {
		return nil, err
	}

	backoff := f.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		data, err := f.fetchOnce(ctx, target)
		if err == nil {
			return data, nil
		}
		if attempt >= f.opts.MaxRetries || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		f.opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":   "upstream_retry",
			"kind":     f.opts.Kind,
			"upstream": target,
			"attempt":  attempt + 1,
			"backoff":  backoff.String(),
		}).Warn("upstream_retry")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (f *UpstreamFetcher) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	if resp.ContentLength > f.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, f.opts.MaxBytes)
	}
	return data, nil
}

// resolveURL 优先使用描述符中的绝对 URL；相对 URL 基于上游解析；仅有 ID 时拼接为 <upstream>/<id>。
func (f *UpstreamFetcher) resolveURL(d descriptor.Descriptor) (string, error) {
	raw := strings.TrimSpace(d.URL)
	if raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", descriptor.ErrInvalidDescriptor, err)
		}
		if parsed.IsAbs() {
			return parsed.String(), nil
		}
		if f.opts.Upstream == nil {
			return "", fmt.Errorf("%w: relative url without upstream", descriptor.ErrInvalidDescriptor)
		}
		base := *f.opts.Upstream
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		return base.ResolveReference(parsed).String(), nil
	}

	if !d.HasID() || f.opts.Upstream == nil {
		return "", descriptor.ErrInvalidDescriptor
	}
	return f.opts.Upstream.JoinPath(strconv.FormatInt(d.ID, 10)).String(), nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
