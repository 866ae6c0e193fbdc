package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

func TestResolveParams(t *testing.T) {
	tests := []struct {
		name    string
		ev      notification.Event
		opts    ParamOptions
		want    Params
		wantErr error
	}{
		{
			name: "known kind is labelled",
			ev:   notification.Event{Type: "Download", Title: "Done", Text: "file.mkv", UserID: "42"},
			want: Params{MsgType: "Resource download", Title: "Done", Text: "file.mkv", UserID: "42"},
		},
		{
			name: "missing title gets the default",
			ev:   notification.Event{Type: "Plugin", Text: "body"},
			want: Params{MsgType: "Plugin", Title: DefaultTitle, Text: "body"},
		},
		{
			name: "whitespace title is kept",
			ev:   notification.Event{Title: "  ", Text: "body"},
			want: Params{Title: "  ", Text: "body"},
		},
		{
			name: "empty kind",
			ev:   notification.Event{Title: "t"},
			want: Params{Title: "t"},
		},
		{
			name:    "unknown kind rejected",
			ev:      notification.Event{Type: "Telepathy", Title: "t"},
			wantErr: mailerr.ErrInvalidMessageType,
		},
		{
			name: "unknown kind passes through when allowed",
			ev:   notification.Event{Type: "Telepathy", Title: "t"},
			opts: ParamOptions{AllowUnrecognized: true},
			want: Params{MsgType: "Telepathy", Title: "t"},
		},
		{
			name: "test run replaces everything",
			ev:   notification.Event{Type: "Telepathy", Title: "ignored", Text: "ignored"},
			opts: ParamOptions{TestRun: true},
			want: Params{
				MsgType: TestLabel,
				Text:    TestText,
				UserID:  TestUserID,
				Image:   notification.Image{Ref: mail.SampleImage},
				TestRun: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveParams(tt.ev, tt.opts)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTitleFor(t *testing.T) {
	p := Params{Title: "Done"}
	assert.Equal(t, "Done", p.TitleFor(config.SlotSecondary))

	p.TestRun = true
	assert.Equal(t, "Testing primary server configuration", p.TitleFor(config.SlotPrimary))
	assert.Equal(t, "Testing secondary server configuration", p.TitleFor(config.SlotSecondary))
}
