package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// 对象键前缀，每类资源按归属 ID 分目录。
const (
	PrefixAvatar    = "avatars"
	PrefixResume    = "resumes"
	PrefixLogo      = "logos"
	PrefixChatImage = "chat"
)

// ObjectKey 生成 <prefix>/<ownerID>/<uuid><ext> 形式的对象键，扩展名取自原始文件名。
func ObjectKey(prefix string, ownerID uint, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("%s/%d/%s%s", prefix, ownerID, uuid.NewString(), ext)
}

// OwnerPrefix 返回某个归属 ID 下的目录前缀。
func OwnerPrefix(prefix string, ownerID uint) string {
	return fmt.Sprintf("%s/%d/", prefix, ownerID)
}

// BelongsTo 判断对象键是否位于给定目录下。
func BelongsTo(objectKey, prefix string, ownerID uint) bool {
	return strings.HasPrefix(objectKey, OwnerPrefix(prefix, ownerID))
}
