package manifest

import (
	"net/http"
	"strings"
)

// 强制刷新的触发原因。
const (
	ReasonBrowserReload     = "browser-reload"
	ReasonNoCacheNavigation = "no-cache-navigation"
)

// Signal 汇总判断“用户是否在强制刷新页面”所需的请求特征。
type Signal struct {
	// Mode 对应 Sec-Fetch-Mode，只有 navigate 才可能触发刷新。
	Mode string
	// CacheMode 为调用方显式给出的缓存模式（reload/no-store 等），HTTP 请求上通常为空。
	CacheMode string
	Header    http.Header
}

// SignalFromRequest 从入站 HTTP 请求中提取 Signal。
func SignalFromRequest(r *http.Request) Signal {
	if r == nil {
		return Signal{}
	}
	return Signal{
		Mode:   r.Header.Get("Sec-Fetch-Mode"),
		Header: r.Header,
	}
}

// RefreshReason 返回强制刷新原因；普通站内跳转返回空串，避免频繁抖动清单。
func RefreshReason(sig Signal) string {
	if !strings.EqualFold(sig.Mode, "navigate") {
		return ""
	}

	switch strings.ToLower(sig.CacheMode) {
	case "reload", "no-store":
		return ReasonBrowserReload
	}

	cacheControl := strings.ToLower(sig.Header.Get("Cache-Control"))
	pragma := strings.ToLower(sig.Header.Get("Pragma"))
	if strings.Contains(cacheControl, "max-age=0") ||
		strings.Contains(cacheControl, "no-cache") ||
		strings.Contains(cacheControl, "no-store") ||
		strings.Contains(pragma, "no-cache") {
		return ReasonNoCacheNavigation
	}
	return ""
}
