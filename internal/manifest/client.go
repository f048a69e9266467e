package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultRefreshDebounce 是强制刷新的最小触发间隔。
const DefaultRefreshDebounce = time.Second

const defaultLoadTimeout = 30 * time.Second

// ErrUnavailable 表示清单无法获取（网络失败、非 2xx 或 JSON 损坏）。
var ErrUnavailable = errors.New("asset manifest unavailable")

// State 描述清单客户端当前所处的加载阶段。
type State int

const (
	StateIdle State = iota
	StateLoading
)

func (s State) String() string {
	if s == StateLoading {
		return "loading"
	}
	return "idle"
}

// Options 控制清单客户端的行为，URL 需为完整的清单地址。
type Options struct {
	URL             string
	HTTPClient      *http.Client
	Logger          *logrus.Logger
	RefreshDebounce time.Duration
	// OnLoaded 在每次成功替换清单后调用，可用于持久化版本号。
	OnLoaded func(*Manifest)
}

// Client 持有当前清单，并保证全进程同一时刻至多一个加载请求在途。
type Client struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
	onLoaded   func(*Manifest)
	now        func() time.Time

	current atomic.Pointer[Manifest]

	mu       sync.Mutex
	inflight *loadCall
	// forced 限制强制刷新频率：每个防抖窗口至多一次。
	forced *rate.Limiter
}

// loadCall 是一次在途加载，done 关闭后 err 可读。
type loadCall struct {
	done chan struct{}
	err  error
}

// NewClient 构造清单客户端，未注入 HTTP 客户端时使用带超时的默认实例。
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("manifest url required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid manifest url: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultLoadTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	debounce := opts.RefreshDebounce
	if debounce <= 0 {
		debounce = DefaultRefreshDebounce
	}
	return &Client{
		url:        opts.URL,
		httpClient: client,
		logger:     logger,
		onLoaded:   opts.OnLoaded,
		now:        time.Now,
		forced:     rate.NewLimiter(rate.Every(debounce), 1),
	}, nil
}

// Current 返回最近一次成功加载的清单，从未成功时为 nil。
func (c *Client) Current() *Manifest {
	return c.current.Load()
}

// State 返回 Idle 或 Loading。
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		return StateLoading
	}
	return StateIdle
}

// Loading 是 State()==StateLoading 的简写。
func (c *Client) Loading() bool {
	return c.State() == StateLoading
}

// Load 发起（或加入在途的）清单加载，并等待其结束。
// 加载本身不受 ctx 取消影响，ctx 只决定调用方等待多久。
func (c *Client) Load(ctx context.Context, reason string) error {
	return c.wait(ctx, c.begin(reason))
}

// QueueForcedRefresh 在防抖窗口外触发强制刷新；窗口内只复用在途加载，不发新请求。
func (c *Client) QueueForcedRefresh(ctx context.Context, reason string) error {
	c.mu.Lock()
	if !c.forced.AllowN(c.now(), 1) {
		call := c.inflight
		c.mu.Unlock()
		if call == nil {
			return nil
		}
		return c.wait(ctx, call)
	}
	c.mu.Unlock()

	return c.Load(ctx, reason)
}

func (c *Client) begin(reason string) *loadCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		return c.inflight
	}
	call := &loadCall{done: make(chan struct{})}
	c.inflight = call
	go c.run(call, reason)
	return call
}

func (c *Client) wait(ctx context.Context, call *loadCall) error {
	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run(call *loadCall, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout())
	defer cancel()

	err := c.fetch(ctx, reason)

	c.mu.Lock()
	call.err = err
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)
}

func (c *Client) loadTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return defaultLoadTimeout
}

func (c *Client) fetch(ctx context.Context, reason string) error {
	fields := logrus.Fields{"action": "manifest_load", "reason": reason}

	target, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	query := target.Query()
	query.Set("ts", strconv.FormatInt(c.now().UnixMilli(), 10))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// 清单本身绝不能命中任何 HTTP 缓存层。
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Error("manifest_load_failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fields["status"] = resp.StatusCode
		c.logger.WithFields(fields).Error("manifest_load_failed")
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var loaded Manifest
	if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
		c.logger.WithFields(fields).WithError(err).Error("manifest_decode_failed")
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if loaded.Assets == nil {
		loaded.Assets = map[string]Asset{}
	}

	c.current.Store(&loaded)
	fields["version"] = loaded.Version
	fields["assets"] = len(loaded.Assets)
	c.logger.WithFields(fields).Info("manifest_loaded")

	if c.onLoaded != nil {
		c.onLoaded(&loaded)
	}
	return nil
}
