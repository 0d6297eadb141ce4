package cvedb

import "github.com/pkg/errors"

var (
	// ErrSourceUnavailable 下载、打开压缩包或读取数据源失败
	ErrSourceUnavailable = errors.New("数据源不可用")

	// ErrStore 数据库操作失败
	ErrStore = errors.New("数据库错误")
)

// SourceError 数据源错误，errors.Is(err, ErrSourceUnavailable) 为真
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return "数据源 " + e.Source + " 不可用: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool { return target == ErrSourceUnavailable }

// StoreError 数据库错误，errors.Is(err, ErrStore) 为真
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func sourceError(source string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Err: err}
}
