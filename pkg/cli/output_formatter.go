package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"CPEStat/internal/cvedb"
	"CPEStat/internal/model"
)

var groupHeaders = map[int]table.Row{
	1: {"Part", "数量"},
	2: {"Part", "Vendor", "数量"},
	3: {"Part", "Vendor", "Product", "数量"},
}

var populationNames = map[string]string{
	"cve":     "CVE 引用",
	"cpe":     "CPE 字典",
	"cpe_raw": "CPE 字典 (未去重)",
}

type OutputFormatter struct {
	format string
	top    int
}

func NewOutputFormatter(format string, top int) *OutputFormatter {
	return &OutputFormatter{format: format, top: top}
}

// PrintStat 输出统计结果摘要
func (of *OutputFormatter) PrintStat(w io.Writer, report *cvedb.StatReport) error {
	switch strings.ToLower(of.format) {
	case "json":
		return of.writeJSON(w, of.trimmed(report))
	default:
		_, err := io.WriteString(w, of.formatStatText(report))
		return err
	}
}

// PrintHistory 输出运行记录
func (of *OutputFormatter) PrintHistory(w io.Writer, history []cvedb.HistoryEntry) error {
	if strings.ToLower(of.format) == "json" {
		return of.writeJSON(w, history)
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "时间", "阶段", "来源", "记录数"})
	for _, entry := range history {
		tw.AppendRow(table.Row{entry.ID, entry.LastUpdate, entry.Phase, entry.Source, entry.RecordsAdded})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func (of *OutputFormatter) formatStatText(report *cvedb.StatReport) string {
	var builder strings.Builder

	coverage := report.Coverage
	tw := table.NewWriter()
	tw.SetTitle("覆盖情况")
	tw.AppendHeader(table.Row{"字典产品", "CVE 引用产品", "共有", "仅字典", "仅 CVE"})
	tw.AppendRow(table.Row{
		coverage.CatalogTotal, coverage.ReferencedTotal, coverage.Shared,
		coverage.CatalogOnly, coverage.ReferencedOnly,
	})
	builder.WriteString(tw.Render())
	builder.WriteString("\n\n")

	for _, group := range report.Groups {
		builder.WriteString(of.formatGroup(group))
		builder.WriteString("\n\n")
	}

	builder.WriteString("报表文件:\n")
	for _, path := range report.Files {
		builder.WriteString("  " + path + "\n")
	}
	return builder.String()
}

func (of *OutputFormatter) formatGroup(group cvedb.GroupReport) string {
	tw := table.NewWriter()
	name := populationNames[group.Population]
	if name == "" {
		name = group.Population
	}
	tw.SetTitle(fmt.Sprintf("%s 按 %d 个字段分组 (共 %d 组)", name, group.Arity, len(group.Counts)))
	tw.AppendHeader(groupHeaders[group.Arity])
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: group.Arity + 1, Align: text.AlignRight},
	})

	for _, count := range of.head(group.Counts) {
		row := make(table.Row, 0, len(count.Keys)+1)
		for _, key := range count.Keys {
			row = append(row, key)
		}
		tw.AppendRow(append(row, count.Count))
	}
	return tw.Render()
}

func (of *OutputFormatter) head(counts []model.GroupCount) []model.GroupCount {
	if of.top > 0 && len(counts) > of.top {
		return counts[:of.top]
	}
	return counts
}

// trimmed 只保留每组的前 top 条，避免 JSON 输出过大
func (of *OutputFormatter) trimmed(report *cvedb.StatReport) *cvedb.StatReport {
	out := *report
	out.Groups = make([]cvedb.GroupReport, len(report.Groups))
	for i, group := range report.Groups {
		group.Counts = of.head(group.Counts)
		out.Groups[i] = group
	}
	out.Coverage.Missing = nil
	return &out
}

func (of *OutputFormatter) writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
