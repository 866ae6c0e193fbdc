package mail

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

//go:embed templates/default.html
var defaultTemplate string

// DefaultTemplate returns the packaged HTML template.
func DefaultTemplate() string {
	return defaultTemplate
}

// TemplateValues are the placeholder values a template is rendered with.
type TemplateValues struct {
	Title   string
	Text    string
	MsgType string
	UserID  string
}

func (v TemplateValues) lookup(name string) (string, bool) {
	switch name {
	case "title":
		return v.Title, true
	case "text":
		return v.Text, true
	case "msg_type":
		return v.MsgType, true
	case "userid":
		return v.UserID, true
	}
	return "", false
}

// TemplateStore reads and writes one template text.
type TemplateStore interface {
	Read() (string, error)
	Write(content string) error
}

// EmbeddedTemplate serves the packaged default. It is read-only.
type EmbeddedTemplate struct{}

func (EmbeddedTemplate) Read() (string, error) {
	return defaultTemplate, nil
}

func (EmbeddedTemplate) Write(string) error {
	return errors.New("packaged template is read-only")
}

// FileTemplateStore keeps the user override template on disk.
type FileTemplateStore struct {
	path string
}

func NewFileTemplateStore(path string) *FileTemplateStore {
	return &FileTemplateStore{path: path}
}

func (s *FileTemplateStore) Path() string {
	return s.path
}

// Exists reports whether the template file is present.
func (s *FileTemplateStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

func (s *FileTemplateStore) Read() (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateNotFound, err,
				"template file %s not found", s.path)
		}
		return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateUnreadable, err,
			"template file %s cannot be accessed", s.path)
	}
	if info.IsDir() {
		return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateUnreadable, nil,
			"template path %s is a directory", s.path)
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateUnreadable, err,
			"template file %s cannot be read", s.path)
	}
	if !utf8.Valid(content) {
		return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateEncoding, nil,
			"template file %s is not valid UTF-8", s.path)
	}
	return string(content), nil
}

func (s *FileTemplateStore) Write(content string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create template dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write template %s: %w", s.path, err)
	}
	return nil
}

// Renderer picks the packaged or the override template and fills it in.
type Renderer struct {
	Default TemplateStore
	Custom  TemplateStore
}

// NewRenderer returns a renderer over the packaged default and the override
// stored at customPath.
func NewRenderer(customPath string) *Renderer {
	return &Renderer{
		Default: EmbeddedTemplate{},
		Custom:  NewFileTemplateStore(customPath),
	}
}

// Render loads the override when useCustom is set, the default otherwise, and
// substitutes the placeholders.
func (r *Renderer) Render(useCustom bool, v TemplateValues) (string, error) {
	store := r.Default
	if useCustom {
		store = r.Custom
	}
	if store == nil {
		store = EmbeddedTemplate{}
	}
	tmpl, err := store.Read()
	if err != nil {
		return "", err
	}
	return RenderTemplate(tmpl, v)
}

// RenderTemplate substitutes {title}, {text}, {msg_type} and {userid} in tmpl.
// Doubled braces produce literal braces. Any other placeholder, an unterminated
// "{" or a lone "}" fails with a template variable error.
func RenderTemplate(tmpl string, v TemplateValues) (string, error) {
	if !utf8.ValidString(tmpl) {
		return "", mailerr.New(mailerr.ErrTemplate, mailerr.ReasonTemplateEncoding, "template is not valid UTF-8", nil)
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		switch c := tmpl[i]; c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateVariable, nil,
					"unterminated placeholder at offset %d", i)
			}
			name := tmpl[i+1 : i+1+end]
			val, ok := v.lookup(name)
			if !ok {
				return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateVariable, nil,
					"unsupported placeholder {%s} (valid: {title}, {text}, {msg_type}, {userid})", name)
			}
			b.WriteString(val)
			i += end + 2
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", mailerr.Newf(mailerr.ErrTemplate, mailerr.ReasonTemplateVariable, nil,
				"single '}' at offset %d", i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}
