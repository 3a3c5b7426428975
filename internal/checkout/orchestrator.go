package checkout

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-hub/internal/logging"
	"github.com/any-hub/doc-hub/internal/metrics"
)

// Orchestrator 校验 checkout 请求并交给 Dispatcher，立即返回。
type Orchestrator struct {
	dispatcher Dispatcher
	recorder   metrics.Recorder
	logger     *logrus.Logger
}

// NewOrchestrator 构造编排器。
func NewOrchestrator(dispatcher Dispatcher, logger *logrus.Logger, recorder metrics.Recorder) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		recorder:   metrics.OrNoop(recorder),
		logger:     logger,
	}
}

// RequestCheckout 返回 nil 表示已接受；ErrInvalidScheme 表示被拒绝且不会调度任何工作。
func (o *Orchestrator) RequestCheckout(_ context.Context, req Request) error {
	fields := logging.CheckoutFields("checkout_request", req.Identity().String(), string(req.Scheme), req.URL, req.Commit)
	if err := req.Validate(); err != nil {
		o.recorder.IncCheckoutRequest("rejected")
		o.logger.WithFields(fields).Info("checkout_rejected")
		return err
	}
	if err := o.dispatcher.Dispatch(req); err != nil {
		o.recorder.IncCheckoutRequest("dispatch_failed")
		o.logger.WithFields(fields).WithError(err).Error("checkout_dispatch_failed")
		return fmt.Errorf("dispatch checkout: %w", err)
	}
	o.recorder.IncCheckoutRequest("accepted")
	o.logger.WithFields(fields).Info("checkout_accepted")
	return nil
}

// Stop 停止底层调度器。
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.dispatcher.Stop(ctx)
}
