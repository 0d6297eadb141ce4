package cpe

import (
	"github.com/pkg/errors"
)

// MaxTreeDepth 配置树允许的最大嵌套层数
const MaxTreeDepth = 64

// NVD 1.1 与 2.0 两种格式的键名
var (
	matchKeys      = []string{"cpe_match", "cpeMatch"}
	identifierKeys = []string{"cpe23Uri", "criteria"}
)

// CollectIdentifiers 递归收集配置树节点引用的全部 CPE 字符串。
//
// 节点有非空 children 时只返回子节点的结果，本节点的匹配项被忽略；
// 没有 children 时返回本节点匹配项中的 CPE，保持输入顺序。
// 两者都没有时返回空结果，不算错误。
func CollectIdentifiers(node any) ([]string, error) {
	return collect(node, 0)
}

func collect(node any, depth int) ([]string, error) {
	if depth > MaxTreeDepth {
		return nil, errors.Wrapf(ErrTreeTooDeep, "超过 %d 层", MaxTreeDepth)
	}
	if node == nil {
		return nil, nil
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrMissingIdentifierField, "节点类型为 %T，不是对象", node)
	}

	if children, ok := obj["children"].([]any); ok && len(children) > 0 {
		var identifiers []string
		for i, child := range children {
			found, err := collect(child, depth+1)
			if err != nil {
				return nil, errors.Wrapf(err, "children[%d]", i)
			}
			identifiers = append(identifiers, found...)
		}
		return identifiers, nil
	}

	entries := matchEntries(obj)
	identifiers := make([]string, 0, len(entries))
	for i, entry := range entries {
		uri, err := identifierOf(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "match[%d]", i)
		}
		identifiers = append(identifiers, uri)
	}
	return identifiers, nil
}

func matchEntries(obj map[string]any) []any {
	for _, key := range matchKeys {
		if entries, ok := obj[key].([]any); ok && len(entries) > 0 {
			return entries
		}
	}
	return nil
}

func identifierOf(entry any) (string, error) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return "", errors.Wrapf(ErrMissingIdentifierField, "匹配项类型为 %T", entry)
	}
	for _, key := range identifierKeys {
		if uri, ok := obj[key].(string); ok && uri != "" {
			return uri, nil
		}
	}
	return "", errors.Wrapf(ErrMissingIdentifierField, "缺少 %v", identifierKeys)
}
