package control

import (
	"encoding/json"

	"github.com/assethub/assethub/internal/manifest"
)

// MessageType 标识控制通道上的请求类型。
type MessageType string

const (
	CheckManifestReady MessageType = "CHECK_MANIFEST_READY"
	GetManifest        MessageType = "GET_MANIFEST"
)

// Message 是发往加载器的请求信封。
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReadyReply 回答 CHECK_MANIFEST_READY，只包含布尔状态，不阻塞。
type ReadyReply struct {
	Ready   bool `json:"ready"`
	Loading bool `json:"loading"`
}

// ManifestReply 回答 GET_MANIFEST；未知请求类型同样以 Success=false 的形式返回。
type ManifestReply struct {
	Success bool               `json:"success"`
	Data    *manifest.Manifest `json:"data,omitempty"`
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
}

const (
	errManifestLoading = "Manifest still loading..."
	errManifestFailed  = "Manifest failed to load"
	errUnknownType     = "Unknown message type"
)
