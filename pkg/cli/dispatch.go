package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/smtp-notifier/pkg/api"
	"github.com/telekom/smtp-notifier/pkg/dispatch"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

// errNotDelivered is returned when every attempted server failed, so the
// process exits non-zero.
var errNotDelivered = errors.New("no server delivered the message")

func delivered(res dispatch.Result) bool {
	return res.Primary == dispatch.Succeeded || res.Secondary == dispatch.Succeeded
}

// typeUsage lists the known notification types with their mail labels.
func typeUsage() string {
	types := notification.Types()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, fmt.Sprintf("%s (%s)", t, t.Label()))
	}
	return "Notification type: " + strings.Join(names, ", ")
}

func NewTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send the test email through the enabled servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if _, err := rt.loadConfig(); err != nil {
				return err
			}
			res, err := rt.dispatcher().Test(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeObject(rt.Writer(), rt.outputFormat, api.NewDispatchResponse(res), res.Summary); err != nil {
				return err
			}
			if !delivered(res) {
				return errNotDelivered
			}
			return nil
		},
	}
}

func NewSendCommand() *cobra.Command {
	var ev notification.Event
	var image string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dispatch one notification with the configured filters applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if _, err := rt.loadConfig(); err != nil {
				return err
			}
			ev.Image = notification.Image{Ref: image}
			res, ran, err := rt.plugin(rt.dispatcher()).HandleEvent(cmd.Context(), ev)
			if err != nil {
				return err
			}
			if !ran {
				_, err := fmt.Fprintln(rt.Writer(), "notification ignored by the configured filters")
				return err
			}
			if err := writeObject(rt.Writer(), rt.outputFormat, api.NewDispatchResponse(res), res.Summary); err != nil {
				return err
			}
			if !delivered(res) {
				return errNotDelivered
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ev.Type, "type", "", typeUsage())
	cmd.Flags().StringVar(&ev.Title, "title", "", "Notification title")
	cmd.Flags().StringVar(&ev.Text, "text", "", "Notification text")
	cmd.Flags().StringVar(&ev.UserID, "userid", "", "User the notification is about")
	cmd.Flags().StringVar(&ev.Channel, "channel", "", "Target channel; notifications for another channel are ignored")
	cmd.Flags().StringVar(&image, "image", "", "Image URL, file path or data URI to embed")

	return cmd
}
