package cpe

import (
	"encoding/xml"
	"io"
	"iter"

	"github.com/pkg/errors"

	"CPEStat/internal/model"
	"CPEStat/internal/utils"
)

// 字典中每个条目的 CPE 2.3 名称位于 <cpe-23:cpe23-item name="..."/>
const (
	cpe23ItemElement = "cpe23-item"
	cpe23NameAttr    = "name"
)

// LoadDictionary 流式解析 CPE 字典，逐条产出解析后的记录。
//
// 格式错误的条目记录警告后跳过；文档本身损坏时产出包装了
// ErrCorruptDocument 的错误并停止。返回的序列只能遍历一次。
func LoadDictionary(r io.Reader, logger *utils.Logger) iter.Seq2[model.IdentifierRecord, error] {
	return func(yield func(model.IdentifierRecord, error) bool) {
		decoder := xml.NewDecoder(r)
		loaded, skipped := 0, 0

		for {
			tok, err := decoder.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				line, _ := decoder.InputPos()
				yield(model.IdentifierRecord{}, errors.Wrapf(ErrCorruptDocument, "第 %d 行: %v", line, err))
				return
			}

			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != cpe23ItemElement {
				continue
			}

			name, ok := attrValue(start, cpe23NameAttr)
			if !ok {
				skipped++
				logger.Warn("字典条目缺少 name 属性，已跳过")
				continue
			}

			record, err := Parse(name)
			if err != nil {
				skipped++
				logger.Warn("跳过字典条目: %v", err)
				continue
			}

			loaded++
			if !yield(record, nil) {
				return
			}
		}

		logger.Debug("字典解析完成: %d 条有效, %d 条跳过", loaded, skipped)
	}
}

func attrValue(start xml.StartElement, local string) (string, bool) {
	for _, attr := range start.Attr {
		if attr.Name.Local == local {
			return attr.Value, true
		}
	}
	return "", false
}
