package cvedb

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"CPEStat/internal/cpe"
	"CPEStat/internal/model"
)

// PutCVEFeeds 并发解析各年份的 CVE 数据源，所有记录经由一个 channel
// 交给持有事务的写入方，整体替换 tbl_cpe_from_cve
func (p *Pipeline) PutCVEFeeds(ctx context.Context) (int, error) {
	years, err := p.cfg.FeedYears()
	if err != nil {
		return 0, err
	}

	count, err := p.db.ReplaceReferenced(ctx, func(insert func(model.ReferencedIdentifier) error) error {
		readCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(readCtx)
		g.SetLimit(p.cfg.Workers)

		rows := make(chan model.ReferencedIdentifier, 1024)
		var readErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, year := range years {
				g.Go(func() error {
					return p.readFeed(gctx, year, rows)
				})
			}
			readErr = g.Wait()
			close(rows)
		}()

		if err := drainRows(rows, cancel, insert); err != nil {
			p.logger.Error("写入 CVE 引用失败，停止读取: %v", err)
			<-done
			return err
		}
		<-done
		return readErr
	})
	if err != nil {
		return 0, errors.Wrap(err, "CVE 数据入库失败")
	}

	if err := p.db.RecordRun(ctx, PhasePut, p.cfg.FeedBaseURL, count); err != nil {
		return 0, err
	}
	return count, nil
}

// drainRows 把 rows 中的记录逐条交给 insert，直到 rows 关闭。
// insert 失败时调用 cancel 通知读取方，并丢弃剩余记录直到 rows 关闭。
func drainRows(rows <-chan model.ReferencedIdentifier, cancel context.CancelFunc, insert func(model.ReferencedIdentifier) error) error {
	for row := range rows {
		if err := insert(row); err != nil {
			cancel()
			for range rows {
			}
			return err
		}
	}
	return nil
}

// readFeed 解析一年的数据源，把每个引用的 CPE 发送到 rows。
// 配置树里的 CPE 格式错误视为上游格式变化，直接返回错误。
func (p *Pipeline) readFeed(ctx context.Context, year int, rows chan<- model.ReferencedIdentifier) error {
	archive := p.cfg.FeedArchive(year)
	entry, err := OpenEntry(archive, p.cfg.FeedEntry(year))
	if err != nil {
		return err
	}
	defer entry.Close()

	logger := p.logger.With("feed", year)
	logger.Info("解析 %d 年CVE数据...", year)

	feedStats, err := cpe.ReadFeed(entry, logger, func(cve model.CVEEntry) error {
		for _, raw := range cve.Identifiers {
			record, err := cpe.Parse(raw)
			if err != nil {
				return errors.Wrap(err, cve.ID)
			}
			select {
			case rows <- model.ReferencedIdentifier{CVEID: cve.ID, Record: record}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "解析 %d 年CVE数据失败", year)
	}

	logger.Info("%d 年: %d 个CVE, %d 个CPE, %d 个节点未找到CPE", year, feedStats.Items, feedStats.Identifiers, feedStats.Gaps)
	return nil
}
