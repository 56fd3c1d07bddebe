// crud_helpers.go: 按主键的通用 CRUD 操作。
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DeleteByKey 按主键删除单条记录, 返回受影响行数。
func (b BaseStore) DeleteByKey(ctx context.Context, table, keyCol, keyVal string) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{keyCol}.Sanitize())
	tag, err := b.pool.Exec(ctx, sql, keyVal)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
