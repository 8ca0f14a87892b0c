package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"hirehub/internal/api/middleware"
)

// 允许的上传类型。
var (
	imageMIMEs  = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
	resumeMIMEs = []string{"application/pdf"}
)

// uploadedFile 是通过校验的上传内容。
type uploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (f *uploadedFile) Reader() io.Reader { return bytes.NewReader(f.Data) }
func (f *uploadedFile) Size() int64       { return int64(len(f.Data)) }

// uploadGuard 在写入对象存储前检查大小、真实类型并做病毒扫描。
type uploadGuard struct {
	clamdAddr string
	maxBytes  int64
}

func newUploadGuard(clamdAddr string, maxBytes int64) *uploadGuard {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &uploadGuard{clamdAddr: clamdAddr, maxBytes: maxBytes}
}

// accept 读取表单字段 field；校验失败时已写入响应并返回 false。
// required 为 false 时字段缺失返回 (nil, true)。
func (g *uploadGuard) accept(c *gin.Context, field string, allowed []string, required bool) (*uploadedFile, bool) {
	log := middleware.LoggerFromContext(c)

	header, err := c.FormFile(field)
	if err != nil {
		if !required && err == http.ErrMissingFile {
			return nil, true
		}
		BadRequest(c, "missing file")
		return nil, false
	}
	if header.Size > g.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return nil, false
	}

	src, err := header.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, g.maxBytes+1))
	if err != nil {
		Internal(c, "failed to read file")
		return nil, false
	}
	if int64(len(data)) > g.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return nil, false
	}

	// 以文件内容判断类型，不信任客户端声明的 Content-Type
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowed...) {
		BadRequest(c, "unsupported file type "+mtype.String())
		return nil, false
	}

	if g.clamdAddr != "" {
		clean, err := g.scan(data)
		if err != nil {
			log.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return nil, false
		}
		if !clean {
			log.Warn("malicious upload rejected", slog.String("filename", header.Filename))
			BadRequest(c, "malicious file detected")
			return nil, false
		}
	}

	return &uploadedFile{
		Filename:    header.Filename,
		ContentType: mtype.String(),
		Data:        data,
	}, true
}

func (g *uploadGuard) scan(data []byte) (bool, error) {
	abort := make(chan bool)
	defer close(abort)

	results, err := clamd.NewClamd(g.clamdAddr).ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return false, err
	}
	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}
