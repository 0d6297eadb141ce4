package cvedb

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// zipEntry 关闭时同时关闭压缩包
type zipEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipEntry) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenEntry 打开压缩包中的一个文件。
// entryName 为空时打开第一个 .json 或 .xml 文件。
func OpenEntry(archivePath, entryName string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, sourceError(archivePath, errors.Wrap(err, "打开压缩包失败"))
	}

	for _, f := range r.File {
		if !matchEntry(f.Name, entryName) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			r.Close()
			return nil, sourceError(archivePath, errors.Wrapf(err, "打开 %s 失败", f.Name))
		}
		return &zipEntry{ReadCloser: rc, archive: r}, nil
	}

	r.Close()
	return nil, sourceError(archivePath, errors.Errorf("未找到文件 %q", entryName))
}

func matchEntry(name, want string) bool {
	if want != "" {
		return name == want
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".xml")
}
