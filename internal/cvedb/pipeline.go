package cvedb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"CPEStat/internal/config"
	"CPEStat/internal/cpe"
	"CPEStat/internal/model"
	"CPEStat/internal/stats"
	"CPEStat/internal/utils"
)

// 阶段名称，同时写入 update_history.phase
const (
	PhaseDownload = "download"
	PhasePut      = "put"
	PhaseStat     = "stat"
)

// Pipeline 依次执行下载、入库、统计三个阶段
type Pipeline struct {
	cfg        config.Config
	db         *CPEDatabase
	downloader *CPEDownloader
	logger     *utils.Logger
}

// StatReport 统计阶段的结果
type StatReport struct {
	Coverage model.CoverageSummary
	Groups   []GroupReport
	Files    []string
}

// GroupReport 一个数据集在某种分组方式下的计数
type GroupReport struct {
	Population string
	Arity      int
	Path       string
	Counts     []model.GroupCount
}

func NewPipeline(cfg config.Config, db *CPEDatabase, downloader *CPEDownloader) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		downloader: downloader,
		logger:     utils.NewLogger("pipeline"),
	}
}

// Download 下载 CPE 字典与配置年份的 CVE 数据源
func (p *Pipeline) Download(ctx context.Context) error {
	years, err := p.cfg.FeedYears()
	if err != nil {
		return err
	}

	p.logger.Info("下载 CPE 字典...")
	if err := p.downloader.Fetch(ctx, p.cfg.DictionaryURL, p.cfg.DictionaryArchive(), p.cfg.Refresh); err != nil {
		return err
	}

	for _, year := range years {
		p.logger.Info("下载 %d 年CVE数据...", year)
		if err := p.downloader.Fetch(ctx, p.cfg.FeedURL(year), p.cfg.FeedArchive(year), p.cfg.Refresh); err != nil {
			return err
		}
	}

	return p.db.RecordRun(ctx, PhaseDownload, p.cfg.DictionaryURL, 1+len(years))
}

// Put 解析字典与 CVE 数据源并整体替换数据库中的记录
func (p *Pipeline) Put(ctx context.Context) error {
	catalog, err := p.PutDictionary(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("CPE 字典入库完成，共 %d 条记录", catalog)

	referenced, err := p.PutCVEFeeds(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("CVE 引用的 CPE 入库完成，共 %d 条记录", referenced)
	return nil
}

// PutDictionary 流式解析字典并写入 tbl_cpe
func (p *Pipeline) PutDictionary(ctx context.Context) (int, error) {
	archive := p.cfg.DictionaryArchive()
	entry, err := OpenEntry(archive, p.cfg.DictionaryEntry())
	if err != nil {
		return 0, err
	}
	defer entry.Close()

	p.logger.Info("解析 CPE 字典 %s ...", filepath.Base(archive))
	count, err := p.db.ReplaceCatalog(ctx, cpe.LoadDictionary(entry, p.logger.With("source", filepath.Base(archive))))
	if err != nil {
		return 0, errors.Wrap(err, "CPE 字典入库失败")
	}

	if err := p.db.RecordRun(ctx, PhasePut, archive, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Stat 重建去重视图，计算分组统计并导出报表
func (p *Pipeline) Stat(ctx context.Context) (*StatReport, error) {
	p.logger.Info("重建去重视图...")
	views, err := stats.RebuildDistinctViews(
		p.db.ScanTriples(ctx, TableCatalog),
		p.db.ScanTriples(ctx, TableReferenced),
	)
	if err != nil {
		return nil, err
	}
	if err := p.db.ReplaceDistinctViews(ctx, views); err != nil {
		return nil, err
	}
	p.logger.Info("字典去重后 %d 个产品，CVE 引用去重后 %d 个产品", len(views.Catalog), len(views.Referenced))

	report := &StatReport{Coverage: stats.Coverage(views)}

	populations := []struct {
		name    string
		triples []model.Triple
	}{
		{"cve", views.Referenced},
		{"cpe", views.Catalog},
	}
	for _, population := range populations {
		for arity := 1; arity <= 3; arity++ {
			counts, err := stats.GroupCount(population.triples, arity)
			if err != nil {
				return nil, err
			}
			path := p.reportPath(population.name, stats.GroupSuffix[arity])
			if err := stats.WriteRows(path, stats.GroupRows(counts)); err != nil {
				return nil, err
			}
			report.Groups = append(report.Groups, GroupReport{
				Population: population.name,
				Arity:      arity,
				Path:       path,
				Counts:     counts,
			})
			report.Files = append(report.Files, path)
		}
	}

	// 字典原始记录（未去重）按 1/2/3 个字段计数，只遍历一次 tbl_cpe
	rawGroups, err := p.countRawCatalog(ctx)
	if err != nil {
		return nil, err
	}
	for i, counts := range rawGroups {
		arity := i + 1
		path := p.reportPath("cpe_raw", stats.GroupSuffix[arity])
		if err := stats.WriteRows(path, stats.GroupRows(counts)); err != nil {
			return nil, err
		}
		report.Groups = append(report.Groups, GroupReport{Population: "cpe_raw", Arity: arity, Path: path, Counts: counts})
		report.Files = append(report.Files, path)
	}

	missingPath := p.reportPath("cve", "missing_in_dict")
	if err := stats.WriteRows(missingPath, stats.TripleRows(report.Coverage.Missing)); err != nil {
		return nil, err
	}
	report.Files = append(report.Files, missingPath)

	if err := p.db.RecordRun(ctx, PhaseStat, p.cfg.ReportDir, len(report.Files)); err != nil {
		return nil, err
	}

	p.logger.Info("统计完成，导出 %d 个报表到 %s", len(report.Files), p.cfg.ReportDir)
	return report, nil
}

// countRawCatalog 按 part; part,vendor; part,vendor,product 统计 tbl_cpe 的原始行
func (p *Pipeline) countRawCatalog(ctx context.Context) ([][]model.GroupCount, error) {
	counters := make([]*stats.Counter, 0, 3)
	for arity := 1; arity <= 3; arity++ {
		counter, err := stats.NewCounter(arity)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}

	for triple, err := range p.db.ScanTriples(ctx, TableCatalog) {
		if err != nil {
			return nil, err
		}
		for _, counter := range counters {
			counter.Add(triple)
		}
	}

	results := make([][]model.GroupCount, len(counters))
	for i, counter := range counters {
		results[i] = counter.Result()
	}
	return results, nil
}

// All 依次执行 download、put、stat
func (p *Pipeline) All(ctx context.Context) (*StatReport, error) {
	if err := p.Download(ctx); err != nil {
		return nil, err
	}
	if err := p.Put(ctx); err != nil {
		return nil, err
	}
	return p.Stat(ctx)
}

func (p *Pipeline) reportPath(population, suffix string) string {
	return filepath.Join(p.cfg.ReportDir, fmt.Sprintf("%s_%s.csv", population, suffix))
}

// History 最近的运行记录
func (p *Pipeline) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return p.db.History(ctx, limit)
}
