package cache

import (
	"bytes"
	"context"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/metrics"
)

// Publisher 在 Store 之上叠加全局缓存开关：关闭时完全不触碰磁盘；
// 开启时写入失败只记录日志与指标，不影响原始响应。
type Publisher struct {
	store    Store
	enabled  bool
	logger   *logrus.Logger
	recorder metrics.Recorder
}

// NewPublisher 构造缓存发布器。store 为 nil 时视为关闭。
func NewPublisher(store Store, enabled bool, logger *logrus.Logger, recorder metrics.Recorder) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{
		store:    store,
		enabled:  enabled && store != nil,
		logger:   logger,
		recorder: metrics.OrNoop(recorder),
	}
}

// Enabled 返回当前是否会写入缓存。
func (p *Publisher) Enabled() bool {
	return p != nil && p.enabled
}

// Publish 将渲染结果写入 requestPath 对应的缓存文件并原样返回 body。
func (p *Publisher) Publish(ctx context.Context, requestPath string, body []byte) []byte {
	if !p.Enabled() {
		return body
	}

	entry, err := p.store.Put(ctx, requestPath, bytes.NewReader(body))
	if err != nil {
		p.recorder.IncCachePublish("failed")
		p.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_publish",
			"path":   requestPath,
		}).Warn("cache_publish_failed")
		return body
	}

	p.recorder.IncCachePublish("written")
	p.logger.WithFields(logrus.Fields{
		"action": "cache_publish",
		"path":   requestPath,
		"file":   entry.FilePath,
		"bytes":  entry.SizeBytes,
	}).Debug("cache_published")
	return body
}
