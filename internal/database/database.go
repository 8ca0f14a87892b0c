package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hirehub/internal/config"
)

const pgUniqueViolation = "23505"

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// constraintIndexes 是 struct tag 无法表达的表达式/部分唯一索引，
// 语法同时适用于 PostgreSQL 与 SQLite。
var constraintIndexes = []string{
	// 公司名称与网址大小写不敏感唯一
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_name_lower ON companies (LOWER(name))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_website_lower ON companies (LOWER(website)) WHERE website <> ''`,
	// 同一职位至多一份被接受的投递
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_one_accepted ON applications (job_id) WHERE status = 'accepted'`,
}

// Migrate 迁移全部业务表并创建约束索引。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range constraintIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create constraint index: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation 判断错误是否来自唯一约束冲突（并发重复投递、重复收藏等）。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
