package model

import (
	"strconv"
	"strings"
)

// CPE23Prefix CPE 2.3 格式化字符串的固定前缀
const CPE23Prefix = "cpe:2.3"

// FieldCount CPE 2.3 名称中的属性个数
const FieldCount = 11

// IdentifierRecord 拆分后的 CPE 2.3 名称
// cpe:2.3:part:vendor:product:version:update:edition:language:sw_edition:target_sw:target_hw:other
type IdentifierRecord struct {
	Part      string `json:"part" db:"part"`
	Vendor    string `json:"vendor" db:"vendor"`
	Product   string `json:"product" db:"product"`
	Version   string `json:"version" db:"version"`
	Update    string `json:"update" db:"update_"`
	Edition   string `json:"edition" db:"edition"`
	Language  string `json:"language" db:"language"`
	SwEdition string `json:"sw_edition" db:"sw_edition"`
	TargetSw  string `json:"target_sw" db:"target_sw"`
	TargetHw  string `json:"target_hw" db:"target_hw"`
	Other     string `json:"other" db:"other"`
}

// Fields 按 CPE 顺序返回 11 个属性
func (r IdentifierRecord) Fields() []string {
	return []string{
		r.Part, r.Vendor, r.Product, r.Version, r.Update, r.Edition,
		r.Language, r.SwEdition, r.TargetSw, r.TargetHw, r.Other,
	}
}

// URI 重新绑定为 cpe:2.3 字符串
func (r IdentifierRecord) URI() string {
	return CPE23Prefix + ":" + strings.Join(r.Fields(), ":")
}

// Triple 投影到 (part, vendor, product)
func (r IdentifierRecord) Triple() Triple {
	return Triple{Part: r.Part, Vendor: r.Vendor, Product: r.Product}
}

// Triple 去重视图中的一行
type Triple struct {
	Part    string `json:"part" db:"part"`
	Vendor  string `json:"vendor" db:"vendor"`
	Product string `json:"product" db:"product"`
}

// Keys 返回前 n 个分组字段
func (t Triple) Keys(n int) []string {
	keys := []string{t.Part, t.Vendor, t.Product}
	if n < 0 {
		n = 0
	}
	if n > len(keys) {
		n = len(keys)
	}
	return keys[:n]
}

// Less 按 part、vendor、product 字典序比较
func (t Triple) Less(o Triple) bool {
	if t.Part != o.Part {
		return t.Part < o.Part
	}
	if t.Vendor != o.Vendor {
		return t.Vendor < o.Vendor
	}
	return t.Product < o.Product
}

// ReferencedIdentifier CVE 配置树中引用的一个 CPE
type ReferencedIdentifier struct {
	CVEID  string           `json:"cve_id" db:"cve_id"`
	Record IdentifierRecord `json:"record"`
}

// GroupCount 分组统计结果
type GroupCount struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// Row 转为导出用的一行，最后一列为计数
func (g GroupCount) Row() []string {
	row := make([]string, 0, len(g.Keys)+1)
	row = append(row, g.Keys...)
	return append(row, strconv.Itoa(g.Count))
}

// CoverageSummary 字典与 CVE 引用两个视图之间的覆盖情况
type CoverageSummary struct {
	CatalogTotal    int      `json:"catalog_total"`
	ReferencedTotal int      `json:"referenced_total"`
	Shared          int      `json:"shared"`
	CatalogOnly     int      `json:"catalog_only"`
	ReferencedOnly  int      `json:"referenced_only"`
	Missing         []Triple `json:"missing"`
}
