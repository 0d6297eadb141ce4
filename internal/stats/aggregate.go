package stats

import (
	"slices"
	"strings"

	"github.com/pkg/errors"

	"CPEStat/internal/model"
)

// ErrInvalidArity 分组字段个数只能是 1、2、3
var ErrInvalidArity = errors.New("分组字段个数必须在 1 到 3 之间")

// GroupSuffix 各分组方式对应的报表文件名后缀
var GroupSuffix = map[int]string{
	1: "group_by_part",
	2: "group_by_part_vendor",
	3: "group_by_part_vendor_product",
}

// Counter 按前 arity 个字段累加计数，可以边读边统计
type Counter struct {
	arity  int
	counts map[string]*model.GroupCount
}

func NewCounter(arity int) (*Counter, error) {
	if arity < 1 || arity > 3 {
		return nil, errors.Wrapf(ErrInvalidArity, "arity=%d", arity)
	}
	return &Counter{
		arity:  arity,
		counts: make(map[string]*model.GroupCount),
	}, nil
}

func (c *Counter) Add(triple model.Triple) {
	keys := triple.Keys(c.arity)
	// \x00 不会出现在 CPE 属性中
	id := strings.Join(keys, "\x00")
	if group, ok := c.counts[id]; ok {
		group.Count++
		return
	}
	c.counts[id] = &model.GroupCount{Keys: keys, Count: 1}
}

// Result 按计数降序返回，计数相同时按分组字段字典序
func (c *Counter) Result() []model.GroupCount {
	result := make([]model.GroupCount, 0, len(c.counts))
	for _, group := range c.counts {
		result = append(result, *group)
	}
	slices.SortFunc(result, func(a, b model.GroupCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return slices.Compare(a.Keys, b.Keys)
	})
	return result
}

// GroupCount 按前 1/2/3 个字段 (part; part,vendor; part,vendor,product) 分组计数
func GroupCount(triples []model.Triple, arity int) ([]model.GroupCount, error) {
	counter, err := NewCounter(arity)
	if err != nil {
		return nil, err
	}
	for _, triple := range triples {
		counter.Add(triple)
	}
	return counter.Result(), nil
}
