package model

// CVEEntry 遍历配置树之后的一条漏洞记录
type CVEEntry struct {
	ID string `json:"id" db:"cve_id"`

	// 配置树中引用的全部 CPE 字符串，保留重复
	Identifiers []string `json:"identifiers"`
}
