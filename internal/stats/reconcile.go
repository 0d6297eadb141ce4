package stats

import (
	"iter"
	"slices"

	"CPEStat/internal/model"
)

// Views 字典与 CVE 引用两个去重视图
type Views struct {
	Catalog    []model.Triple
	Referenced []model.Triple
}

// RebuildDistinctViews 将两个数据集分别投影到 (part, vendor, product) 并去重。
// 比较区分大小写，通配符不做归一化。结果按字典序排列，相同输入得到相同输出。
func RebuildDistinctViews(catalog, referenced iter.Seq2[model.Triple, error]) (Views, error) {
	catalogView, err := distinct(catalog)
	if err != nil {
		return Views{}, err
	}
	referencedView, err := distinct(referenced)
	if err != nil {
		return Views{}, err
	}
	return Views{Catalog: catalogView, Referenced: referencedView}, nil
}

func distinct(seq iter.Seq2[model.Triple, error]) ([]model.Triple, error) {
	seen := make(map[model.Triple]struct{})
	for triple, err := range seq {
		if err != nil {
			return nil, err
		}
		seen[triple] = struct{}{}
	}

	view := make([]model.Triple, 0, len(seen))
	for triple := range seen {
		view = append(view, triple)
	}
	sortTriples(view)
	return view, nil
}

// Coverage 比较两个视图，Missing 为 CVE 引用了但字典中不存在的产品
func Coverage(views Views) model.CoverageSummary {
	catalog := make(map[model.Triple]struct{}, len(views.Catalog))
	for _, triple := range views.Catalog {
		catalog[triple] = struct{}{}
	}

	summary := model.CoverageSummary{
		CatalogTotal:    len(views.Catalog),
		ReferencedTotal: len(views.Referenced),
	}
	for _, triple := range views.Referenced {
		if _, ok := catalog[triple]; ok {
			summary.Shared++
			continue
		}
		summary.Missing = append(summary.Missing, triple)
	}
	summary.ReferencedOnly = len(summary.Missing)
	summary.CatalogOnly = summary.CatalogTotal - summary.Shared
	sortTriples(summary.Missing)
	return summary
}

// FromSlice 把切片包装成 RebuildDistinctViews 可用的序列
func FromSlice(triples []model.Triple) iter.Seq2[model.Triple, error] {
	return func(yield func(model.Triple, error) bool) {
		for _, triple := range triples {
			if !yield(triple, nil) {
				return
			}
		}
	}
}

func sortTriples(triples []model.Triple) {
	slices.SortFunc(triples, func(a, b model.Triple) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}
