package cvedb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func newTestDownloader(maxRetries int) *CPEDownloader {
	downloader := NewCPEDownloader(5*time.Second, maxRetries)
	downloader.initialInterval = time.Millisecond
	downloader.SetProgressOutput(nil)
	return downloader
}

func TestNewCPEDownloader(t *testing.T) {
	downloader := NewCPEDownloader(time.Minute, 3)
	if downloader == nil {
		t.Fatal("NewCPEDownloader() 返回 nil")
	}
	if downloader.httpClient.Timeout != time.Minute {
		t.Errorf("期望超时为 %v, 实际得到 %v", time.Minute, downloader.httpClient.Timeout)
	}
	if downloader.maxRetries != 3 {
		t.Errorf("期望重试次数为 3, 实际得到 %d", downloader.maxRetries)
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	localPath := filepath.Join(t.TempDir(), "sub", "feed.zip")
	if err := newTestDownloader(0).Fetch(context.Background(), server.URL+"/feed.zip", localPath, false); err != nil {
		t.Fatalf("下载失败: %v", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("期望内容为 payload, 实际得到 %q", data)
	}
	if _, err := os.Stat(localPath + ".part"); !os.IsNotExist(err) {
		t.Error("临时文件应已被删除")
	}
}

func TestFetchSkipsExisting(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("new"))
	}))
	defer server.Close()

	localPath := filepath.Join(t.TempDir(), "feed.zip")
	if err := os.WriteFile(localPath, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	downloader := newTestDownloader(0)
	if err := downloader.Fetch(context.Background(), server.URL, localPath, false); err != nil {
		t.Fatalf("下载失败: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("文件已存在时不应发起请求, 实际请求 %d 次", calls)
	}

	// refresh 时重新下载
	if err := downloader.Fetch(context.Background(), server.URL, localPath, true); err != nil {
		t.Fatalf("下载失败: %v", err)
	}
	data, _ := os.ReadFile(localPath)
	if string(data) != "new" {
		t.Errorf("期望内容为 new, 实际得到 %q", data)
	}
}

func TestFetchRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	localPath := filepath.Join(t.TempDir(), "feed.zip")
	if err := newTestDownloader(3).Fetch(context.Background(), server.URL, localPath, false); err != nil {
		t.Fatalf("重试后应下载成功: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("期望请求 3 次, 实际得到 %d", calls)
	}
}

func TestFetchGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	localPath := filepath.Join(t.TempDir(), "feed.zip")
	err := newTestDownloader(2).Fetch(context.Background(), server.URL, localPath, false)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("期望 ErrSourceUnavailable, 实际得到 %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("期望请求 3 次 (1 次 + 2 次重试), 实际得到 %d", calls)
	}
	if _, err := os.Stat(localPath); !os.IsNotExist(err) {
		t.Error("下载失败时不应留下文件")
	}
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := newTestDownloader(3).Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "x.zip"), false)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("期望 ErrSourceUnavailable, 实际得到 %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("404 不应重试, 实际请求 %d 次", calls)
	}
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestDownloader(5).Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "x.zip"), false)
	if err == nil {
		t.Fatal("取消后应返回错误")
	}
}
