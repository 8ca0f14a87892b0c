package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hirehub/internal/config"
	"hirehub/internal/database"
)

// 数据库连接参数，未指定时回退到环境变量。
var dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "HireHub 运维工具",
	Long: `HireHub 运维工具，直接连接数据库执行管理操作。

Examples:
  admin create-user --email ops@example.com --name Ops --role recruiter
  admin purge-withdrawn`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dbFlags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	flags.IntVar(&dbFlags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	flags.StringVar(&dbFlags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	flags.StringVar(&dbFlags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	flags.StringVar(&dbFlags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	flags.StringVar(&dbFlags.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	rootCmd.AddCommand(createUserCmd)
	rootCmd.AddCommand(purgeWithdrawnCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDatabase 按命令行参数与环境变量连接数据库并执行迁移。
func openDatabase() (*gorm.DB, error) {
	dbCfg, err := loadDatabaseConfig(dbFlags.host, dbFlags.port, dbFlags.name, dbFlags.user, dbFlags.password, dbFlags.sslMode)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg, logger.Silent)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
