package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"hirehub/internal/database"
)

// ProfileInput 是用户可自行修改的资料。
type ProfileInput struct {
	Name   string
	Phone  string
	Bio    string
	Skills []string
}

// UserService 管理个人资料与附件。
type UserService struct {
	db *gorm.DB
}

// NewUserService 构造 UserService。
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Get 按 ID 查询用户。
func (s *UserService) Get(ctx context.Context, id uint) (*database.User, error) {
	return loadUser(s.db.WithContext(ctx), id)
}

// UpdateProfile 更新资料；技能去重并保持原顺序。
func (s *UserService) UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*database.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	seen := make(map[string]struct{}, len(in.Skills))
	skills := make([]string, 0, len(in.Skills))
	for _, sk := range in.Skills {
		sk = strings.TrimSpace(sk)
		key := strings.ToLower(sk)
		if sk == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, sk)
	}

	db := s.db.WithContext(ctx)
	user, err := loadUser(db, id)
	if err != nil {
		return nil, err
	}
	user.Name = name
	user.Phone = strings.TrimSpace(in.Phone)
	user.Bio = strings.TrimSpace(in.Bio)
	user.Skills = skills
	if err := db.Model(user).Select("name", "phone", "bio", "skills").Updates(user).Error; err != nil {
		return nil, errors.Wrap(err, "update profile")
	}
	return user, nil
}

// SetProfilePicture 记录头像对象键并返回旧值。
func (s *UserService) SetProfilePicture(ctx context.Context, id uint, objectKey string) (string, error) {
	db := s.db.WithContext(ctx)
	user, err := loadUser(db, id)
	if err != nil {
		return "", err
	}
	previous := user.ProfilePictureKey
	if err := db.Model(&database.User{}).Where("id = ?", user.ID).Update("profile_picture_key", objectKey).Error; err != nil {
		return "", errors.Wrap(err, "update profile picture")
	}
	return previous, nil
}

// SetResume 记录简历对象键与原始文件名并返回旧对象键，仅求职者可用。
func (s *UserService) SetResume(ctx context.Context, id uint, objectKey, originalName string) (string, error) {
	db := s.db.WithContext(ctx)
	user, err := loadUser(db, id)
	if err != nil {
		return "", err
	}
	if user.Role != database.RoleCandidate {
		return "", forbidden("only candidates can upload a resume")
	}
	previous := user.ResumeKey
	if err := db.Model(&database.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"resume_key":           objectKey,
		"resume_original_name": originalName,
	}).Error; err != nil {
		return "", errors.Wrap(err, "update resume")
	}
	return previous, nil
}

// ErrorMessage 返回可直接展示给客户端的错误文本。
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return errors.UnwrapAll(err).Error()
}
