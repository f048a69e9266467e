package control

import (
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/manifest"
)

// ManifestSource 是 Responder 读取清单状态所需的接口，由 manifest.Client 实现。
type ManifestSource interface {
	Current() *manifest.Manifest
	Loading() bool
}

// Responder 在加载器一侧应答控制消息。
type Responder struct {
	source ManifestSource
	logger *logrus.Logger
}

// NewResponder 构造应答器，logger 为空时使用 logrus 默认实例。
func NewResponder(source ManifestSource, logger *logrus.Logger) *Responder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Responder{source: source, logger: logger}
}

// Reply 根据消息类型生成应答，返回值可直接 JSON 编码。
func (r *Responder) Reply(msg Message) any {
	switch msg.Type {
	case CheckManifestReady:
		return ReadyReply{
			Ready:   r.source.Current() != nil,
			Loading: r.source.Loading(),
		}
	case GetManifest:
		if current := r.source.Current(); current != nil {
			return ManifestReply{Success: true, Data: current}
		}
		loading := r.source.Loading()
		reason := errManifestFailed
		if loading {
			reason = errManifestLoading
		}
		return ManifestReply{Success: false, Loading: loading, Error: reason}
	default:
		r.logger.WithFields(logrus.Fields{
			"action": "control_message",
			"type":   string(msg.Type),
		}).Warn("control_unknown_message")
		return ManifestReply{Success: false, Error: errUnknownType}
	}
}
