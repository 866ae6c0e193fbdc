package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/smtp-notifier/pkg/config"
)

func NewPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage SMTP credentials in the OS keyring",
	}
	cmd.AddCommand(newPasswordSetCommand())
	return cmd
}

func newPasswordSetCommand() *cobra.Command {
	var slot string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the password of a server in the keyring, read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			s := config.Slot(slot)
			if !s.Valid() {
				return fmt.Errorf("unknown server slot %q (valid: primary, secondary)", slot)
			}
			cfg, err := rt.store.Get()
			if err != nil {
				return err
			}
			sc, err := cfg.Server(s)
			if err != nil {
				return err
			}
			if strings.TrimSpace(sc.SenderAddress) == "" {
				return fmt.Errorf("%s server has no sender address configured", s)
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				return errors.New("password is empty")
			}
			if err := config.StoreKeyringPassword(sc.SenderAddress, password); err != nil {
				return err
			}

			sc.Password = ""
			sc.PasswordFromKeyring = true
			if s == config.SlotPrimary {
				cfg.Primary = sc
			} else {
				cfg.Secondary = sc
			}
			if err := rt.store.Put(cfg); err != nil {
				return fmt.Errorf("failed to persist notifier configuration: %w", err)
			}
			_, err = fmt.Fprintf(rt.Writer(), "%s server password stored in keyring for %s\n", s, sc.SenderAddress)
			return err
		},
	}

	cmd.Flags().StringVar(&slot, "slot", string(config.SlotPrimary), "Server slot: primary or secondary")
	return cmd
}
