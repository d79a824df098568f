package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/any-hub/coverhub/internal/descriptor"
)

// Source 记录结果来自哪一层，仅用于观测与测试，不影响正确性。
type Source int

const (
	SourceOverride Source = iota + 1
	SourceDisk
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceDisk:
		return "disk"
	case SourceNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Options 是单次请求的缓存策略，零值表示全部层启用。
type Options struct {
	SkipOverride    bool
	SkipDiskRead    bool
	SkipDiskWrite   bool
	SkipMemoryWrite bool
}

// Fetcher 是按实体类型注入的网络获取能力，超时策略由实现方负责。
type Fetcher interface {
	Fetch(ctx context.Context, d descriptor.Descriptor, opts Options) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, d descriptor.Descriptor, opts Options) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, d descriptor.Descriptor, opts Options) ([]byte, error) {
	return f(ctx, d, opts)
}

// ErrFetchFailed 包装网络获取失败的原因，调用方可重试。
var ErrFetchFailed = errors.New("fetch failed")

// Result 是一次解析的结果。Body 始终是打开的句柄，调用方必须 Close。
//
//	SourceOverride: Path 指向永久封面文件
//	SourceDisk:     Data 为已校验长度的磁盘缓存内容
//	SourceNetwork:  Data 为获取到的原始字节
type Result struct {
	Source Source
	Key    string
	Path   string
	Size   int64
	Data   []byte
	Body   io.ReadSeekCloser
}

// Bytes 读取完整内容。
func (r *Result) Bytes() ([]byte, error) {
	if r.Data != nil {
		return r.Data, nil
	}
	if _, err := r.Body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(r.Body)
}

// Close releases the underlying file handle, if any.
func (r *Result) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

type byteBody struct {
	*bytes.Reader
}

func (byteBody) Close() error { return nil }

func newByteBody(data []byte) io.ReadSeekCloser {
	return byteBody{Reader: bytes.NewReader(data)}
}
