package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"hirehub/internal/auth"
	"hirehub/internal/database"
	"hirehub/internal/service"
)

var createUserFlags struct {
	email string
	name  string
	role  string
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "创建已验证账号，随机密码仅输出一次",
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.ToLower(strings.TrimSpace(createUserFlags.email))
		name := strings.TrimSpace(createUserFlags.name)
		role := strings.TrimSpace(createUserFlags.role)
		if email == "" || name == "" {
			return errors.New("--email and --name are required")
		}
		if role != database.RoleRecruiter && role != database.RoleCandidate {
			return fmt.Errorf("--role must be %s or %s", database.RoleRecruiter, database.RoleCandidate)
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}

		var existing database.User
		switch err := db.Where("email = ?", email).First(&existing).Error; {
		case err == nil:
			return fmt.Errorf("user %q already exists", email)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("query user: %w", err)
		}

		password, err := auth.RandomPassword(24)
		if err != nil {
			return fmt.Errorf("generate password: %w", err)
		}
		hashed, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		// 初始密码随机生成，首次登录后必须修改
		user := database.User{
			Name:               name,
			Email:              email,
			PasswordHash:       hashed,
			Role:               role,
			Verified:           true,
			MustChangePassword: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "已创建账号：\n")
		fmt.Fprintf(out, "邮箱: %s\n", email)
		fmt.Fprintf(out, "角色: %s\n", role)
		fmt.Fprintf(out, "初始密码: %s\n", password)
		fmt.Fprintf(out, "首次登录后需修改密码\n")
		fmt.Fprintf(out, "提示：该密码仅显示一次，请登录后立即修改。\n")
		return nil
	},
}

var purgeWithdrawnCmd = &cobra.Command{
	Use:   "purge-withdrawn",
	Short: "立即删除已过期的撤回投递",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		n, err := service.NewApplicationService(db).PurgeExpiredWithdrawn(context.Background())
		if err != nil {
			return fmt.Errorf("purge withdrawn applications: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 条过期的撤回投递\n", n)
		return nil
	},
}

func init() {
	createUserCmd.Flags().StringVar(&createUserFlags.email, "email", "", "登录邮箱（必填）")
	createUserCmd.Flags().StringVar(&createUserFlags.name, "name", "", "显示名称（必填）")
	createUserCmd.Flags().StringVar(&createUserFlags.role, "role", database.RoleCandidate, "角色：recruiter 或 candidate")
}
