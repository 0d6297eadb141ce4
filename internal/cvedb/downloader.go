package cvedb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"CPEStat/internal/utils"
)

// CPEDownloader 把远程文件下载到本地，失败时按指数退避重试
type CPEDownloader struct {
	logger          *utils.Logger
	httpClient      *http.Client
	maxRetries      int
	initialInterval time.Duration
	progress        io.Writer
}

func NewCPEDownloader(timeout time.Duration, maxRetries int) *CPEDownloader {
	return &CPEDownloader{
		logger: utils.NewLogger("cpe-downloader"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:      maxRetries,
		initialInterval: 2 * time.Second,
		progress:        os.Stderr,
	}
}

// SetProgressOutput 设置进度条输出，nil 表示不显示
func (cd *CPEDownloader) SetProgressOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	cd.progress = w
}

// Fetch 下载 url 到 localPath。
// 文件已存在且 refresh 为 false 时跳过；先写入 .part 临时文件，完成后再改名。
func (cd *CPEDownloader) Fetch(ctx context.Context, url, localPath string, refresh bool) error {
	// 检查文件是否已存在
	if _, err := os.Stat(localPath); err == nil && !refresh {
		cd.logger.Info("%s 已存在，跳过下载", filepath.Base(localPath))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return sourceError(url, errors.Wrap(err, "创建目录失败"))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cd.initialInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cd.maxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		return cd.downloadFile(ctx, url, localPath)
	}, policy, func(err error, wait time.Duration) {
		cd.logger.Warn("下载 %s 失败，%v 后重试: %v", url, wait, err)
	})
	if err != nil {
		return sourceError(url, err)
	}

	cd.logger.Info("%s 下载完成", filepath.Base(localPath))
	return nil
}

// 下载单个文件
func (cd *CPEDownloader) downloadFile(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "创建请求失败"))
	}

	// 发起HTTP请求
	resp, err := cd.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return errors.Wrap(err, "HTTP请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP错误: %s", resp.Status)
		// 4xx 重试也不会成功
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	// 创建临时文件
	partPath := localPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "创建文件失败"))
	}

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription(filepath.Base(localPath)),
		progressbar.OptionSetWriter(cd.progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cd.progress)
		}),
	)

	// 复制内容
	_, err = io.Copy(io.MultiWriter(out, bar), resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return errors.Wrap(err, "写入文件失败")
	}

	if err := os.Rename(partPath, localPath); err != nil {
		os.Remove(partPath)
		return backoff.Permanent(errors.Wrap(err, "重命名文件失败"))
	}
	return nil
}
