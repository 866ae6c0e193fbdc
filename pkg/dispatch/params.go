package dispatch

import (
	"fmt"
	"strings"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

const (
	DefaultTitle = "[SMTP Mail Notification]"

	TestLabel  = "Test email"
	TestText   = "This is a test email~~~"
	TestUserID = "Test user"
)

// TestTitle is the subject of a test email sent through slot.
func TestTitle(slot config.Slot) string {
	return fmt.Sprintf("Testing %s server configuration", slot)
}

type ParamOptions struct {
	TestRun           bool
	AllowUnrecognized bool
}

// Params are the send-ready values of one event.
type Params struct {
	MsgType string
	Title   string
	Text    string
	UserID  string
	Image   notification.Image
	TestRun bool
}

// TitleFor returns the subject used for slot. Test runs name the server
// under test.
func (p Params) TitleFor(slot config.Slot) string {
	if p.TestRun {
		return TestTitle(slot)
	}
	return p.Title
}

// ResolveParams validates and defaults the fields of ev. An unknown kind is
// rejected unless opts.AllowUnrecognized is set. Test runs replace every
// field with synthetic content.
func ResolveParams(ev notification.Event, opts ParamOptions) (Params, error) {
	if opts.TestRun {
		return Params{
			MsgType: TestLabel,
			Text:    TestText,
			UserID:  TestUserID,
			Image:   notification.Image{Ref: mail.SampleImage},
			TestRun: true,
		}, nil
	}

	p := Params{
		Title:  ev.Title,
		Text:   ev.Text,
		UserID: ev.UserID,
		Image:  ev.Image,
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}

	if kind := strings.TrimSpace(ev.Type); kind != "" {
		label, ok := notification.Label(kind)
		switch {
		case ok:
			p.MsgType = label
		case opts.AllowUnrecognized:
			p.MsgType = kind
		default:
			return Params{}, mailerr.Newf(mailerr.ErrInvalidMessageType, mailerr.ReasonInvalidMessageType, nil,
				"unrecognized message type %q", kind)
		}
	}
	return p, nil
}
