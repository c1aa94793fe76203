// Package service 包含了应用的业务逻辑层。
package service

import "errors"

var (
	// ErrDocumentNotFound 文档不存在或不属于该 agent。
	ErrDocumentNotFound = errors.New("文档不存在")
	// ErrInvalidInput 请求参数不合法。
	ErrInvalidInput = errors.New("参数不合法")
)
