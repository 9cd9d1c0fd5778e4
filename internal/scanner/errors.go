package scanner

import "fmt"

// 扫描错误类型
const (
	ErrorTypeRPC      = "rpc"
	ErrorTypeSubgraph = "subgraph"
	ErrorTypeDecode   = "decode"
	ErrorTypeStorage  = "storage"
)

// ScanError 扫描错误
type ScanError struct {
	Type    string `json:"type"`    // 错误类型
	Message string `json:"message"` // 错误消息
	Err     error  `json:"-"`       // 原始错误
}

// Error 实现error接口
func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap 返回原始错误
func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError 创建扫描错误
func NewScanError(errorType, message string, err error) *ScanError {
	return &ScanError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
}
