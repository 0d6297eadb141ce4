package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"CPEStat/internal/model"
)

// WriteRows 写出逗号分隔的报表，每行一条记录，没有表头
func WriteRows(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "创建报表目录失败")
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "创建报表文件失败")
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	if err := writer.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "写入报表 %s 失败", path)
	}
	return out.Close()
}

// GroupRows 把分组结果转为报表行
func GroupRows(groups []model.GroupCount) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, group.Row())
	}
	return rows
}

// TripleRows 把三元组转为报表行
func TripleRows(triples []model.Triple) [][]string {
	rows := make([][]string, 0, len(triples))
	for _, triple := range triples {
		rows = append(rows, []string{triple.Part, triple.Vendor, triple.Product})
	}
	return rows
}
