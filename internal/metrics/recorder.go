package metrics

import "time"

// Recorder 定义文档服务的观测钩子。
type Recorder interface {
	IncCheckoutRequest(result string)
	ObserveCheckoutJob(outcome string, d time.Duration)
	IncRender(family, result string)
	IncCachePublish(result string)
}

// NoopRecorder 不做任何事情，未配置 metrics 时作为默认实现。
type NoopRecorder struct{}

func (NoopRecorder) IncCheckoutRequest(string)                 {}
func (NoopRecorder) ObserveCheckoutJob(string, time.Duration) {}
func (NoopRecorder) IncRender(string, string)                  {}
func (NoopRecorder) IncCachePublish(string)                    {}

// OrNoop 在 r 为 nil 时返回 NoopRecorder。
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
