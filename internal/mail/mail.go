// Package mail 渲染事务邮件模板并通过 SMTP 投递。
package mail

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/cockroachdb/errors"
	gomail "github.com/wneessen/go-mail"

	"hirehub/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate 表示任务引用了不存在的模板，重试没有意义。
var ErrUnknownTemplate = errors.New("unknown mail template")

// Message 是渲染完成的邮件。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender 投递渲染好的邮件。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer 持有全部已解析模板。
type Renderer struct {
	html    map[string]*htmltemplate.Template
	subject map[string]*texttemplate.Template
}

// NewRenderer 解析内嵌模板。
func NewRenderer() (*Renderer, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, errors.Wrap(err, "read mail templates")
	}
	r := &Renderer{
		html:    make(map[string]*htmltemplate.Template, len(entries)),
		subject: make(map[string]*texttemplate.Template, len(entries)),
	}
	for _, e := range entries {
		file := "templates/" + e.Name()
		name := strings.TrimSuffix(e.Name(), ".html")

		h, err := htmltemplate.New(name).Option("missingkey=zero").ParseFS(templateFS, file)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", file)
		}
		// 主题用 text/template，避免 HTML 转义
		s, err := texttemplate.New(name).Option("missingkey=zero").ParseFS(templateFS, file)
		if err != nil {
			return nil, errors.Wrapf(err, "parse subject %s", file)
		}
		r.html[name] = h
		r.subject[name] = s
	}
	return r, nil
}

// Render 用 data 渲染模板 name。
func (r *Renderer) Render(name, to string, data map[string]string) (Message, error) {
	h, ok := r.html[name]
	if !ok {
		return Message{}, errors.Mark(errors.Newf("template %q", name), ErrUnknownTemplate)
	}

	var subject, body bytes.Buffer
	if err := r.subject[name].ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, errors.Wrapf(err, "render subject %s", name)
	}
	if err := h.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, errors.Wrapf(err, "render body %s", name)
	}
	return Message{
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
	}, nil
}

// SMTPSender 使用 go-mail 通过 SMTP 发送。
type SMTPSender struct {
	cfg config.MailConfig
}

// NewSMTPSender 构造 SMTPSender。
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send 实现 Sender。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return errors.Wrap(err, "set from")
	}
	if err := m.To(msg.To); err != nil {
		return errors.Wrap(err, "set to")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.TLS {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.NoTLS))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "new smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "send mail to %s", msg.To)
	}
	return nil
}
