package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage the custom email template",
	}
	cmd.AddCommand(newTemplateShowCommand(), newTemplateSaveCommand(), newTemplateRestoreCommand())
	return cmd
}

func newTemplateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the custom template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			content, err := rt.plugin(nil).Template()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(rt.Writer(), content)
			return err
		},
	}
}

func newTemplateSaveCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Replace the custom template with a file or stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			var content []byte
			if file == "" || file == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}
			if err := rt.plugin(nil).SaveTemplate(string(content)); err != nil {
				return err
			}
			_, err = fmt.Fprintln(rt.Writer(), "custom template saved")
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Template file to read; - or empty reads stdin")
	return cmd
}

func newTemplateRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Overwrite the custom template with the packaged default",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.plugin(nil).RestoreDefaultTemplate(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(rt.Writer(), "default template restored")
			return err
		},
	}
}
