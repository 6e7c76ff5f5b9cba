package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var errInsertNoRow = errors.New("insert returned no row")

const (
	mysqlDuplicateEntry     = 1062
	postgresUniqueViolation = "23505"
)

// isDuplicateKey 识别唯一约束冲突
// 开启 TranslateError 后驱动会转换成 gorm.ErrDuplicatedKey，这里同时兼容原始驱动错误
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
		return true
	}
	return false
}

// translateError 把唯一约束冲突转换成 ErrDuplicateEmail（customers 表唯一索引只有 email）
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return ErrDuplicateEmail
	}
	return err
}
