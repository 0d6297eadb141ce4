package cvedb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPEStat/internal/model"
)

func TestDrainRows(t *testing.T) {
	rows := make(chan model.ReferencedIdentifier, 3)
	for i := 0; i < 3; i++ {
		rows <- model.ReferencedIdentifier{CVEID: fmt.Sprintf("CVE-2022-%04d", i)}
	}
	close(rows)

	var got []string
	err := drainRows(rows, func() { t.Error("成功时不应取消读取方") }, func(row model.ReferencedIdentifier) error {
		got = append(got, row.CVEID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2022-0000", "CVE-2022-0001", "CVE-2022-0002"}, got)
}

func TestDrainRowsInsertFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 读取方一直发送，直到被取消
	rows := make(chan model.ReferencedIdentifier)
	sent := make(chan int, 1)
	go func() {
		defer close(rows)
		n := 0
		for {
			select {
			case rows <- model.ReferencedIdentifier{CVEID: "CVE-2022-0001"}:
				n++
			case <-ctx.Done():
				sent <- n
				return
			}
		}
	}()

	broken := errors.New("磁盘已满")
	calls := 0
	err := drainRows(rows, cancel, func(model.ReferencedIdentifier) error {
		calls++
		if calls == 3 {
			return broken
		}
		return nil
	})

	assert.Equal(t, broken, err)
	assert.Equal(t, 3, calls, "失败后不应继续写入")
	assert.Error(t, ctx.Err(), "失败时应取消读取方")
	assert.GreaterOrEqual(t, <-sent, 3)
}

// cancelAfterContext 在 Done 被调用 limit 次之后变为已取消
type cancelAfterContext struct {
	context.Context
	mu    sync.Mutex
	calls int
	limit int
	done  chan struct{}
}

func newCancelAfterContext(limit int) *cancelAfterContext {
	return &cancelAfterContext{Context: context.Background(), limit: limit, done: make(chan struct{})}
}

func (c *cancelAfterContext) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == c.limit {
		close(c.done)
	}
	return c.done
}

func (c *cancelAfterContext) Err() error {
	select {
	case <-c.done:
		return context.Canceled
	default:
		return nil
	}
}

// largeFeed 生成 n 个 CVE，每个引用一个 CPE
func largeFeed(year, n int) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"cve": {"CVE_data_meta": {"ID": "CVE-%d-%04d"}},
		  "configurations": {"nodes": [{"operator": "OR", "cpe_match": [
		    {"cpe23Uri": "cpe:2.3:a:vendor%d:prod%d:*:*:*:*:*:*:*:*"}]}]}}`, year, i, i%7, i))
	}
	return `{"CVE_Items": [` + strings.Join(items, ",") + `]}`
}

func TestPutCVEFeedsCancelledMidway(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeFixtures(t, cfg)
	p := newTestPipeline(t, cfg)

	require.NoError(t, p.Put(context.Background()))
	before, err := p.db.CountRows(context.Background(), TableReferenced)
	require.NoError(t, err)
	require.Equal(t, 3, before)

	// 两年的数据源一起读取，写入进行到一半时取消
	writeZip(t, cfg.FeedArchive(2021), cfg.FeedEntry(2021), largeFeed(2021, 300))
	writeZip(t, cfg.FeedArchive(2022), cfg.FeedEntry(2022), largeFeed(2022, 300))

	_, err = p.PutCVEFeeds(newCancelAfterContext(200))
	require.Error(t, err)

	after, err := p.db.CountRows(context.Background(), TableReferenced)
	require.NoError(t, err)
	assert.Equal(t, before, after, "取消后事务应回滚")
}

func TestPutCVEFeedsReaderFailureWithOtherYear(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeFixtures(t, cfg)
	p := newTestPipeline(t, cfg)
	require.NoError(t, p.Put(context.Background()))

	writeZip(t, cfg.FeedArchive(2021), cfg.FeedEntry(2021), largeFeed(2021, 300))
	writeZip(t, cfg.FeedArchive(2022), cfg.FeedEntry(2022), `{"CVE_Items": [`)

	_, err := p.PutCVEFeeds(context.Background())
	require.Error(t, err)

	after, err := p.db.CountRows(context.Background(), TableReferenced)
	require.NoError(t, err)
	assert.Equal(t, 3, after)
}
