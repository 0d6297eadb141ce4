package cvedb

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CPEStat/internal/model"
	"CPEStat/internal/stats"
	"CPEStat/internal/utils"

	_ "github.com/mattn/go-sqlite3"
)

// 表名
const (
	TableCatalog            = "tbl_cpe"
	TableReferenced         = "tbl_cpe_from_cve"
	TableCatalogDistinct    = "tbl_cpe_dict"
	TableReferencedDistinct = "tbl_cpe_cve"
	TableHistory            = "update_history"
)

const identifierColumns = `
		part  TEXT NOT NULL,
		vendor  TEXT NOT NULL,
		product  TEXT NOT NULL,
		version  TEXT NOT NULL,
		update_  TEXT NOT NULL,
		edition  TEXT NOT NULL,
		language  TEXT NOT NULL,
		sw_edition  TEXT NOT NULL,
		target_sw  TEXT NOT NULL,
		target_hw  TEXT NOT NULL,
		other  TEXT NOT NULL`

const tripleColumns = `
		part  TEXT NOT NULL,
		vendor  TEXT NOT NULL,
		product  TEXT NOT NULL`

const insertIdentifierColumns = `part, vendor, product, version, update_, edition,
		language, sw_edition, target_sw, target_hw, other`

// CPEDatabase 保存 CPE 记录与去重视图的 SQLite 数据库。
// 只开一个连接，所有写入在事务里串行进行。
type CPEDatabase struct {
	db     *sql.DB
	path   string
	logger *utils.Logger
}

// HistoryEntry 一次阶段运行的记录
type HistoryEntry struct {
	ID           int
	LastUpdate   string
	Phase        string
	Source       string
	RecordsAdded int
}

func NewCPEDatabase(dbPath string) (*CPEDatabase, error) {
	logger := utils.NewLogger("cvedb")

	// 确保目录存在
	if !strings.HasPrefix(dbPath, ":memory:") && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, storeError("创建数据库目录失败", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, storeError("打开数据库失败", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storeError("连接数据库失败", err)
	}

	cd := &CPEDatabase{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	// 初始化表
	if err := cd.initTables(); err != nil {
		db.Close()
		return nil, err
	}

	return cd, nil
}

func (cd *CPEDatabase) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS update_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_update TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		phase TEXT NOT NULL,
		source TEXT,
		records_added INTEGER
	);
	`

	_, err := cd.db.Exec(schema)
	return storeError("初始化表失败", err)
}

// withTx 在一个事务中执行 fn，fn 返回错误时回滚
func (cd *CPEDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := cd.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("开始事务失败", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return storeError("提交事务失败", tx.Commit())
}

// recreateTable 删除并重建表，只在事务中调用
func recreateTable(ctx context.Context, tx *sql.Tx, table, columns string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return storeError("删除表 "+table+" 失败", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s\n\t)", table, columns)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return storeError("创建表 "+table+" 失败", err)
	}
	return nil
}

// ReplaceCatalog 用字典记录整体替换 tbl_cpe。
// 序列产出错误时整个事务回滚，旧数据保持不变。
func (cd *CPEDatabase) ReplaceCatalog(ctx context.Context, records iter.Seq2[model.IdentifierRecord, error]) (int, error) {
	count := 0
	err := cd.withTx(ctx, func(tx *sql.Tx) error {
		if err := recreateTable(ctx, tx, TableCatalog, identifierColumns); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			TableCatalog, insertIdentifierColumns))
		if err != nil {
			return storeError("准备插入语句失败", err)
		}
		defer stmt.Close()

		for record, err := range records {
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, fieldArgs(record)...); err != nil {
				return storeError("插入字典记录失败", err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	cd.logger.Debug("tbl_cpe 写入 %d 条记录", count)
	return count, nil
}

// ReplaceReferenced 整体替换 tbl_cpe_from_cve。
// fill 通过 insert 写入记录；insert 只能在调用 fill 的 goroutine 中使用。
func (cd *CPEDatabase) ReplaceReferenced(ctx context.Context, fill func(insert func(model.ReferencedIdentifier) error) error) (int, error) {
	count := 0
	err := cd.withTx(ctx, func(tx *sql.Tx) error {
		columns := "\n\t\tcve_id  TEXT NOT NULL," + identifierColumns
		if err := recreateTable(ctx, tx, TableReferenced, columns); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (cve_id, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			TableReferenced, insertIdentifierColumns))
		if err != nil {
			return storeError("准备插入语句失败", err)
		}
		defer stmt.Close()

		return fill(func(ref model.ReferencedIdentifier) error {
			args := append([]any{ref.CVEID}, fieldArgs(ref.Record)...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return storeError("插入 CVE 引用记录失败", err)
			}
			count++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	cd.logger.Debug("tbl_cpe_from_cve 写入 %d 条记录", count)
	return count, nil
}

// ReplaceDistinctViews 在同一个事务中重建 tbl_cpe_dict 与 tbl_cpe_cve，
// 读者不会看到只重建了一半的视图
func (cd *CPEDatabase) ReplaceDistinctViews(ctx context.Context, views stats.Views) error {
	return cd.withTx(ctx, func(tx *sql.Tx) error {
		targets := []struct {
			table   string
			triples []model.Triple
		}{
			{TableCatalogDistinct, views.Catalog},
			{TableReferencedDistinct, views.Referenced},
		}

		for _, target := range targets {
			if err := recreateTable(ctx, tx, target.table, tripleColumns); err != nil {
				return err
			}
			stmt, err := tx.PrepareContext(ctx,
				"INSERT INTO "+target.table+" (part, vendor, product) VALUES (?, ?, ?)")
			if err != nil {
				return storeError("准备插入语句失败", err)
			}
			for _, triple := range target.triples {
				if _, err := stmt.ExecContext(ctx, triple.Part, triple.Vendor, triple.Product); err != nil {
					stmt.Close()
					return storeError("写入 "+target.table+" 失败", err)
				}
			}
			stmt.Close()
		}
		return nil
	})
}

// ScanTriples 按行读取表中的 (part, vendor, product)。
// 遍历期间占用唯一的连接，不要在循环体内访问数据库。
func (cd *CPEDatabase) ScanTriples(ctx context.Context, table string) iter.Seq2[model.Triple, error] {
	return func(yield func(model.Triple, error) bool) {
		if !knownTable(table) {
			yield(model.Triple{}, storeError("查询", fmt.Errorf("未知的表 %q", table)))
			return
		}

		rows, err := cd.db.QueryContext(ctx, "SELECT part, vendor, product FROM "+table)
		if err != nil {
			yield(model.Triple{}, storeError("查询 "+table+" 失败", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var triple model.Triple
			if err := rows.Scan(&triple.Part, &triple.Vendor, &triple.Product); err != nil {
				yield(model.Triple{}, storeError("读取 "+table+" 失败", err))
				return
			}
			if !yield(triple, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Triple{}, storeError("读取 "+table+" 失败", err))
		}
	}
}

// CountRows 获取表的行数
func (cd *CPEDatabase) CountRows(ctx context.Context, table string) (int, error) {
	if !knownTable(table) {
		return 0, storeError("查询", fmt.Errorf("未知的表 %q", table))
	}
	var count int
	err := cd.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, storeError("统计 "+table+" 失败", err)
	}
	return count, nil
}

// RecordRun 记录一次阶段运行
func (cd *CPEDatabase) RecordRun(ctx context.Context, phase, source string, records int) error {
	_, err := cd.db.ExecContext(ctx, `
		INSERT INTO update_history (phase, source, records_added, last_update)
		VALUES (?, ?, ?, ?)`,
		phase, source, records, time.Now().UTC().Format(time.RFC3339),
	)
	return storeError("记录运行历史失败", err)
}

// History 获取最近的运行历史
func (cd *CPEDatabase) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := cd.db.QueryContext(ctx, `
		SELECT id, last_update, phase, source, records_added
		FROM update_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storeError("查询运行历史失败", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.LastUpdate, &entry.Phase, &entry.Source, &entry.RecordsAdded); err != nil {
			return nil, storeError("读取运行历史失败", err)
		}
		history = append(history, entry)
	}

	return history, storeError("读取运行历史失败", rows.Err())
}

func (cd *CPEDatabase) Close() error {
	return cd.db.Close()
}

func fieldArgs(record model.IdentifierRecord) []any {
	fields := record.Fields()
	args := make([]any, len(fields))
	for i, field := range fields {
		args[i] = field
	}
	return args
}

func knownTable(table string) bool {
	switch table {
	case TableCatalog, TableReferenced, TableCatalogDistinct, TableReferencedDistinct:
		return true
	}
	return false
}
