package mail

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/gomail.v2"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

// MessageParams is everything needed to build one message for one attempt.
type MessageParams struct {
	Title   string
	Text    string
	MsgType string
	UserID  string
	Image   notification.Image

	SenderAddress string
	SenderName    string
	Recipients    []string

	SendImage      bool
	CustomTemplate bool
}

// Warning is a non-fatal problem met while building a message.
type Warning struct {
	Reason  mailerr.Reason
	Message string
}

// Builder assembles MIME messages.
type Builder struct {
	Renderer *Renderer
	Images   *ImageLoader
}

// NewBuilder returns a builder rendering with the override template at
// customTemplatePath when requested.
func NewBuilder(customTemplatePath string, images *ImageLoader) *Builder {
	if images == nil {
		images = NewImageLoader(0)
	}
	return &Builder{
		Renderer: NewRenderer(customTemplatePath),
		Images:   images,
	}
}

// Build renders the template, sets the headers and the body and embeds the
// image. Render and header failures abort the build; image failures are
// returned as warnings and the message is built without the image.
func (b *Builder) Build(ctx context.Context, p MessageParams) (*gomail.Message, []Warning, error) {
	html, err := b.Renderer.Render(p.CustomTemplate, TemplateValues{
		Title:   p.Title,
		Text:    p.Text,
		MsgType: p.MsgType,
		UserID:  p.UserID,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := checkHeader("Subject", p.Title); err != nil {
		return nil, nil, err
	}
	if err := checkHeader("From", p.SenderName); err != nil {
		return nil, nil, err
	}
	if err := checkHeader("From", p.SenderAddress); err != nil {
		return nil, nil, err
	}
	for _, r := range p.Recipients {
		if err := checkHeader("To", r); err != nil {
			return nil, nil, err
		}
	}

	msg := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	msg.SetHeader("Subject", p.Title)
	msg.SetAddressHeader("From", p.SenderAddress, p.SenderName)
	msg.SetHeader("To", p.Recipients...)
	msg.SetBody("text/plain", plainText(p))
	msg.AddAlternative("text/html", html)

	var warnings []Warning
	if p.SendImage && !p.Image.Empty() {
		if w := b.embedImage(ctx, msg, p.Image); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return msg, warnings, nil
}

func (b *Builder) embedImage(ctx context.Context, msg *gomail.Message, img notification.Image) *Warning {
	src, err := ClassifyImage(img)
	if err != nil {
		return warningFrom(err)
	}
	loader := b.Images
	if loader == nil {
		loader = NewImageLoader(0)
	}
	data, err := loader.Load(ctx, src)
	if err != nil {
		return warningFrom(err)
	}
	msg.Embed(ImageContentID,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data.Bytes)
			return err
		}),
		gomail.SetHeader(map[string][]string{"Content-Type": {data.ContentType}}),
	)
	return nil
}

func warningFrom(err error) *Warning {
	reason := mailerr.ReasonOf(err)
	if reason == "" {
		reason = mailerr.ReasonImageUnrecognized
	}
	return &Warning{Reason: reason, Message: err.Error()}
}

func checkHeader(name, value string) error {
	if !utf8.ValidString(value) {
		return mailerr.Newf(mailerr.ErrHeaderEncoding, mailerr.ReasonHeaderEncoding, nil,
			"%s header is not valid UTF-8", name)
	}
	if strings.ContainsAny(value, "\r\n") {
		return mailerr.Newf(mailerr.ErrHeaderEncoding, mailerr.ReasonHeaderEncoding, nil,
			"%s header contains a line break", name)
	}
	return nil
}

func plainText(p MessageParams) string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Text != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Text)
	}
	return b.String()
}
