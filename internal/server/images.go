package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/coverhub/internal/descriptor"
	"github.com/any-hub/coverhub/internal/pipeline"
)

const sniffLen = 512

type imageHandler struct {
	registry *KindRegistry
	logger   *logrus.Logger
}

// serveImage 处理 GET /images/:kind，按 override → disk → network 顺序解析图片。
func (h *imageHandler) serveImage(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)

	route, ok := h.registry.Lookup(c.Params("kind"))
	if !ok {
		return writeError(c, fiber.StatusNotFound, "kind_not_found")
	}

	d, err := descriptorFromQuery(c, route)
	if err != nil {
		h.logResult(route, requestID, "", fiber.StatusBadRequest, started, err)
		return writeError(c, fiber.StatusBadRequest, "invalid_descriptor")
	}
	opts, err := requestOptions(c, route)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_options")
	}

	result, err := route.Pipeline.Resolve(requestContext(c), d, opts)
	if err != nil {
		status, code := resolveErrorStatus(err)
		h.logResult(route, requestID, "", status, started, err)
		return writeError(c, status, code)
	}
	defer result.Close()

	contentType, err := sniffContentType(result.Body)
	if err != nil {
		h.logResult(route, requestID, result.Source.String(), fiber.StatusInternalServerError, started, err)
		return writeError(c, fiber.StatusInternalServerError, "read_failed")
	}

	c.Set("Content-Type", contentType)
	c.Set("X-Coverhub-Source", result.Source.String())
	c.Set("X-Coverhub-Key", result.Key)
	if result.Size > 0 {
		c.Response().Header.SetContentLength(int(result.Size))
	}
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		h.logResult(route, requestID, result.Source.String(), fiber.StatusOK, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), result.Body)
	h.logResult(route, requestID, result.Source.String(), fiber.StatusOK, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "read image failed: "+err.Error())
	}
	return nil
}

// putCover 处理 PUT /covers/:kind/:id，请求体即封面字节。
func (h *imageHandler) putCover(c fiber.Ctx) error {
	route, d, ok, err := h.coverTarget(c)
	if !ok {
		return err
	}
	body := c.Body()
	if len(body) == 0 {
		return writeError(c, fiber.StatusBadRequest, "empty_body")
	}

	path, err := route.Pipeline.SetCover(requestContext(c), d, bytes.NewReader(body))
	if err != nil {
		return h.coverError(c, route, d, err)
	}
	// 只清理查询参数 v 对应版本的缓存条目，其他版本的旧条目由 LRU 自然淘汰。
	if err := route.Pipeline.Evict(d); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cover_put",
			"kind":   route.Module.Key,
		}).Warn("cache_evict_failed")
	}

	h.logger.WithFields(logrus.Fields{
		"action":     "cover_put",
		"kind":       route.Module.Key,
		"entity_id":  d.ID,
		"path":       path,
		"bytes":      len(body),
		"request_id": RequestID(c),
	}).Info("cover_saved")
	return c.SendStatus(fiber.StatusNoContent)
}

// deleteCover 处理 DELETE /covers/:kind/:id。
func (h *imageHandler) deleteCover(c fiber.Ctx) error {
	route, d, ok, err := h.coverTarget(c)
	if !ok {
		return err
	}

	removed, err := route.Pipeline.DeleteCover(d)
	if err != nil {
		return h.coverError(c, route, d, err)
	}
	if !removed {
		return writeError(c, fiber.StatusNotFound, "cover_not_found")
	}

	h.logger.WithFields(logrus.Fields{
		"action":     "cover_delete",
		"kind":       route.Module.Key,
		"entity_id":  d.ID,
		"request_id": RequestID(c),
	}).Info("cover_deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// coverTarget 解析封面路由参数；ok 为 false 时 err 是已写出的响应。
func (h *imageHandler) coverTarget(c fiber.Ctx) (*KindRoute, descriptor.Descriptor, bool, error) {
	route, ok := h.registry.Lookup(c.Params("kind"))
	if !ok {
		return nil, descriptor.Descriptor{}, false, writeError(c, fiber.StatusNotFound, "kind_not_found")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, descriptor.Descriptor{}, false, writeError(c, fiber.StatusBadRequest, "invalid_descriptor")
	}
	version, err := parseInt64(c.Query("v"))
	if err != nil {
		return nil, descriptor.Descriptor{}, false, writeError(c, fiber.StatusBadRequest, "invalid_descriptor")
	}
	d := descriptor.Descriptor{
		ID:           id,
		Kind:         descriptor.ParseKind(route.Module.Key),
		LastModified: version,
	}
	return route, d, true, nil
}

func (h *imageHandler) coverError(c fiber.Ctx, route *KindRoute, d descriptor.Descriptor, err error) error {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"action":    "cover_write",
		"kind":      route.Module.Key,
		"entity_id": d.ID,
	}).Warn("cover_write_failed")

	switch {
	case errors.Is(err, pipeline.ErrNoCoverStore):
		return writeError(c, fiber.StatusNotImplemented, "cover_store_disabled")
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return writeError(c, fiber.StatusBadRequest, "invalid_descriptor")
	default:
		return writeError(c, fiber.StatusInternalServerError, "cover_write_failed")
	}
}

func (h *imageHandler) logResult(route *KindRoute, requestID, source string, status int, started time.Time, err error) {
	fields := logrus.Fields{
		"action":     "resolve",
		"kind":       route.Module.Key,
		"source":     source,
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
		"request_id": requestID,
	}
	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("image_request_failed")
		return
	}
	entry.Info("image_served")
}

// descriptorFromQuery 读取 id/url/v/retained 查询参数。
func descriptorFromQuery(c fiber.Ctx, route *KindRoute) (descriptor.Descriptor, error) {
	id, err := parseInt64(c.Query("id"))
	if err != nil {
		return descriptor.Descriptor{}, err
	}
	version, err := parseInt64(c.Query("v"))
	if err != nil {
		return descriptor.Descriptor{}, err
	}
	retained, err := parseBool(c.Query("retained"))
	if err != nil {
		return descriptor.Descriptor{}, err
	}

	d := descriptor.Descriptor{
		ID:           id,
		URL:          strings.TrimSpace(c.Query("url")),
		Kind:         descriptor.ParseKind(route.Module.Key),
		Retained:     retained,
		LastModified: version,
	}
	return d, d.Validate()
}

// requestOptions 在类型策略之上叠加请求级开关，只能关闭缓存层。
func requestOptions(c fiber.Ctx, route *KindRoute) (pipeline.Options, error) {
	opts := route.Options()
	skipOverride, err := parseBool(c.Query("skip_override"))
	if err != nil {
		return opts, err
	}
	skipDisk, err := parseBool(c.Query("skip_disk"))
	if err != nil {
		return opts, err
	}
	opts.SkipOverride = opts.SkipOverride || skipOverride
	opts.SkipDiskRead = opts.SkipDiskRead || skipDisk
	return opts, nil
}

func resolveErrorStatus(err error) (int, string) {
	var statusErr *StatusError
	switch {
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return fiber.StatusBadRequest, "invalid_descriptor"
	case errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
		return fiber.StatusNotFound, "image_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "upstream_timeout"
	default:
		return fiber.StatusBadGateway, "upstream_failed"
	}
}

func sniffContentType(body io.ReadSeeker) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(body, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func parseInt64(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
