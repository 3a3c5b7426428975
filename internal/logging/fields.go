package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供文档族/路径/缓存状态字段，供文档渲染日志复用。
func RequestFields(family, path, requestID string, cached bool) logrus.Fields {
	fields := logrus.Fields{
		"family": family,
		"path":   path,
		"cached": cached,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// CheckoutFields 描述一次 checkout 任务，供编排器与 worker 进程共用。
func CheckoutFields(action, identity, scheme, url, commit string) logrus.Fields {
	return logrus.Fields{
		"action":   action,
		"identity": identity,
		"scheme":   scheme,
		"url":      url,
		"commit":   commit,
	}
}

// RenderFields 描述一次文档渲染。
func RenderFields(family, identity, version, page string) logrus.Fields {
	return logrus.Fields{
		"action":   "render",
		"family":   family,
		"identity": identity,
		"version":  version,
		"page":     page,
	}
}
