package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/loader"
	"github.com/assethub/assethub/internal/logging"
	"github.com/assethub/assethub/internal/server"
)

// Upstream 是 Handler 依赖的拦截层，由 *loader.Loader 实现，测试中可替换。
// 实现方通过 loader.RecordClassification 报告本次请求的分类。
type Upstream interface {
	http.RoundTripper
}

// Handler 把 Fiber 请求转换为 *http.Request 交给拦截层，再把结果流式写回客户端。
type Handler struct {
	upstream Upstream
	logger   *logrus.Logger
}

// NewHandler constructs a proxy handler around the interception loader.
func NewHandler(upstream Upstream, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{upstream: upstream, logger: logger}
}

// Handle 执行一次拦截请求，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	req, err := buildRequest(c)
	if err != nil {
		h.logResult(nil, nil, requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}
	ctx, class := loader.WithClassification(req.Context())
	req = req.WithContext(ctx)

	resp, err := h.upstream.RoundTrip(req)
	if err != nil {
		h.logResult(req, class, requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	cacheHit := resp.Header.Get(loader.ServedFromHeader) == loader.ServedFromCache
	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if req.Method == http.MethodHead {
		h.logResult(req, class, requestID, resp.StatusCode, cacheHit, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(req, class, requestID, resp.StatusCode, cacheHit, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// buildRequest 将 fasthttp 请求复制为标准库请求，保留原始路径与查询串。
func buildRequest(c fiber.Ctx) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := url.ParseRequestURI(string(c.Request().RequestURI()))
	if err != nil {
		return nil, err
	}
	target.Scheme = c.Scheme()
	target.Host = c.Hostname()

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}
	for key, values := range c.GetReqHeaders() {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Host = target.Host
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	return req, nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	req *http.Request,
	class *loader.Classification,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	var fields logrus.Fields
	if req != nil && class != nil {
		fields = logging.RequestFields(req.URL.Path, class.Key, class.Kind.String(), cacheHit)
		fields["method"] = req.Method
	} else {
		fields = logrus.Fields{"cache_hit": false}
	}
	fields["action"] = "proxy"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
