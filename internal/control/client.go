package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultMessageTimeout 是单条控制消息的默认超时。
const DefaultMessageTimeout = 2 * time.Second

// ErrTimeout 表示加载器未在超时内应答。
var ErrTimeout = errors.New("control message timeout")

// Client 是管理端的控制通道客户端，每次调用都带超时。
type Client struct {
	transport Transport
	timeout   time.Duration
}

// NewClient 构造客户端，timeout<=0 时使用 DefaultMessageTimeout。
func NewClient(transport Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultMessageTimeout
	}
	return &Client{transport: transport, timeout: timeout}
}

// CheckManifestReady 查询加载器是否已持有清单。
func (c *Client) CheckManifestReady(ctx context.Context) (ReadyReply, error) {
	var reply ReadyReply
	err := c.call(ctx, CheckManifestReady, &reply)
	return reply, err
}

// GetManifest 请求加载器当前的清单或其加载状态。
func (c *Client) GetManifest(ctx context.Context) (ManifestReply, error) {
	var reply ManifestReply
	err := c.call(ctx, GetManifest, &reply)
	return reply, err
}

func (c *Client) call(ctx context.Context, typ MessageType, out any) error {
	if c.transport == nil {
		return errors.New("control transport unavailable")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.transport.Exchange(callCtx, Message{Type: typ})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrTimeout, typ)
		}
		return fmt.Errorf("control %s: %w", typ, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", typ, err)
	}
	return nil
}
