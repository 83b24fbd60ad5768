package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetworkUnavailable 无网络或请求未到达服务端，可以重试
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrRemoteRejected 服务端返回了业务错误，重试没有意义
	ErrRemoteRejected = errors.New("rejected by remote service")
	// ErrServerFailure 服务端 5xx
	ErrServerFailure = errors.New("remote service failure")
	// ErrUnauthorized 令牌缺失或过期
	ErrUnauthorized = errors.New("unauthorized")
)

// 重复领取不是错误，通过 ClaimResult.Status == ClaimAlreadyClaimed 返回

// StatusError 服务端返回的非 2xx 响应
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status >= 500:
		return ErrServerFailure
	default:
		return ErrRemoteRejected
	}
}

// IsTransient 只有网络错误和网关类错误值得自动重试一次
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetworkUnavailable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
