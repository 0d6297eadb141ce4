package cpe

import "github.com/pkg/errors"

var (
	// ErrMalformedIdentifier CPE 字符串段数不足或无法对齐到 11 个属性
	ErrMalformedIdentifier = errors.New("CPE 格式错误")

	// ErrMissingIdentifierField 配置树的匹配项缺少 CPE 字段，通常意味着上游格式变化
	ErrMissingIdentifierField = errors.New("匹配项缺少 CPE 字段")

	// ErrTreeTooDeep 配置树嵌套超过 MaxTreeDepth
	ErrTreeTooDeep = errors.New("配置树嵌套过深")

	// ErrCorruptDocument XML/JSON 文档本身无法解析
	ErrCorruptDocument = errors.New("文档损坏")
)
