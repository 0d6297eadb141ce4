package cpe

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"CPEStat/internal/model"
	"CPEStat/internal/utils"
)

// FeedStats 单个 CVE 数据源的解析统计
type FeedStats struct {
	Items       int
	Identifiers int
	Gaps        int
}

// feedSchema 描述 CVE 数据源中条目数组的位置
type feedSchema struct {
	itemsKey string
	id       func(item map[string]any) string
	nodes    func(item map[string]any) []any
}

var feedSchemas = []feedSchema{
	// NVD JSON 1.1: CVE_Items[].configurations.nodes[]
	{
		itemsKey: "CVE_Items",
		id: func(item map[string]any) string {
			id, _ := dig(item, "cve", "CVE_data_meta", "ID").(string)
			return id
		},
		nodes: func(item map[string]any) []any {
			nodes, _ := dig(item, "configurations", "nodes").([]any)
			return nodes
		},
	},
	// NVD JSON 2.0: vulnerabilities[].cve.configurations[].nodes[]
	{
		itemsKey: "vulnerabilities",
		id: func(item map[string]any) string {
			id, _ := dig(item, "cve", "id").(string)
			return id
		},
		nodes: func(item map[string]any) []any {
			configs, _ := dig(item, "cve", "configurations").([]any)
			var nodes []any
			for _, config := range configs {
				if found, ok := dig(config, "nodes").([]any); ok {
					nodes = append(nodes, found...)
				}
			}
			return nodes
		},
	},
}

// ReadFeed 流式读取 CVE JSON 数据源，对每条漏洞遍历配置树后调用 fn。
//
// 配置树中没有任何 CPE 的节点记为覆盖缺口并继续；
// 遍历错误和 fn 返回的错误会中止读取。
func ReadFeed(r io.Reader, logger *utils.Logger, fn func(model.CVEEntry) error) (FeedStats, error) {
	var stats FeedStats
	decoder := json.NewDecoder(r)

	if err := expectDelim(decoder, '{'); err != nil {
		return stats, err
	}

	found := false
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return stats, corrupt(err)
		}
		key, _ := tok.(string)

		schema, ok := schemaFor(key)
		if !ok {
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return stats, corrupt(err)
			}
			continue
		}

		found = true
		if err := readItems(decoder, schema, logger, &stats, fn); err != nil {
			return stats, err
		}
	}

	if err := expectDelim(decoder, '}'); err != nil {
		return stats, err
	}
	if !found {
		logger.Warn("数据源中没有 CVE_Items 或 vulnerabilities")
	}

	return stats, nil
}

func readItems(decoder *json.Decoder, schema feedSchema, logger *utils.Logger, stats *FeedStats, fn func(model.CVEEntry) error) error {
	if err := expectDelim(decoder, '['); err != nil {
		return err
	}

	for decoder.More() {
		var item map[string]any
		if err := decoder.Decode(&item); err != nil {
			return corrupt(err)
		}
		stats.Items++

		entry := model.CVEEntry{ID: schema.id(item)}
		nodes := schema.nodes(item)
		if len(nodes) == 0 {
			stats.Gaps++
			logger.Debug("%s 没有配置节点", entry.ID)
		}

		for i, node := range nodes {
			identifiers, err := CollectIdentifiers(node)
			if err != nil {
				return errors.Wrapf(err, "%s nodes[%d]", entry.ID, i)
			}
			if len(identifiers) == 0 {
				stats.Gaps++
				logger.Debug("%s nodes[%d] 未找到 CPE", entry.ID, i)
				continue
			}
			entry.Identifiers = append(entry.Identifiers, identifiers...)
		}

		stats.Identifiers += len(entry.Identifiers)
		if err := fn(entry); err != nil {
			return err
		}
	}

	return expectDelim(decoder, ']')
}

func schemaFor(key string) (feedSchema, bool) {
	for _, schema := range feedSchemas {
		if schema.itemsKey == key {
			return schema, true
		}
	}
	return feedSchema{}, false
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	tok, err := decoder.Token()
	if err != nil {
		return corrupt(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return errors.Wrapf(ErrCorruptDocument, "期望 %q，得到 %v", want, tok)
	}
	return nil
}

func corrupt(err error) error {
	return errors.Wrapf(ErrCorruptDocument, "%v", err)
}

// dig 按键路径取嵌套 JSON 对象中的值
func dig(v any, keys ...string) any {
	for _, key := range keys {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}
