package cache

import (
	"fmt"
	"path/filepath"
)

// SQLiteFileName 是 sqlite 驱动在 StoragePath 下使用的数据库文件名。
const SQLiteFileName = "shellcache.db"

// OpenStorage 按驱动名构建 Storage：fs 使用目录布局，sqlite 使用单文件数据库。
func OpenStorage(driver, basePath string) (Storage, error) {
	switch driver {
	case "", "fs":
		return NewFileStorage(basePath)
	case "sqlite":
		return NewSQLiteStorage(filepath.Join(basePath, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
