package executor

import "fmt"

// 投资执行错误码
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodePrecondition      = "PRECONDITION"
	CodeTransferFailed    = "TRANSFER_FAILED"
	CodeExchangeFailed    = "EXCHANGE_FAILED"
)

// FundingError 投资执行错误
type FundingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *FundingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *FundingError) Unwrap() error {
	return e.Err
}

// NewFundingError 创建投资执行错误
func NewFundingError(code, message string, err error) *FundingError {
	return &FundingError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
