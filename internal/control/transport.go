package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Transport 将一条消息送达加载器并取回原始应答，具体载体（HTTP、进程内管道）对业务透明。
type Transport interface {
	Exchange(ctx context.Context, msg Message) (json.RawMessage, error)
}

// maxReplyBytes 限制单条应答大小，清单本身可能较大。
const maxReplyBytes = 64 << 20

// HTTPTransport 通过 POST <Endpoint> 发送 JSON 信封，对应加载器的 /-/control 路由。
type HTTPTransport struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPTransport 构造 HTTP 载体，client 为空时使用 http.DefaultClient。
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Endpoint: endpoint, Client: client}
}

func (t *HTTPTransport) Exchange(ctx context.Context, msg Message) (json.RawMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode control message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("control endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read control reply: %w", err)
	}
	return json.RawMessage(body), nil
}

// LocalTransport 在同一进程内模拟“消息 + 回复端口”：每次调用开一个单次回复通道。
type LocalTransport struct {
	responder *Responder
}

// NewLocalTransport 直接绑定加载器的 Responder。
func NewLocalTransport(responder *Responder) *LocalTransport {
	return &LocalTransport{responder: responder}
}

func (t *LocalTransport) Exchange(ctx context.Context, msg Message) (json.RawMessage, error) {
	port := make(chan json.RawMessage, 1)
	errs := make(chan error, 1)
	go func() {
		data, err := json.Marshal(t.responder.Reply(msg))
		if err != nil {
			errs <- err
			return
		}
		port <- data
	}()

	select {
	case data := <-port:
		return data, nil
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
