package cli

import (
	"github.com/spf13/cobra"

	"github.com/telekom/smtp-notifier/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show smtp-notifier version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			info := version.GetBuildInfo()
			return writeObject(rt.Writer(), rt.outputFormat, info, info.String())
		},
	}
}
