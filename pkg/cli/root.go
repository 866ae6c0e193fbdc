package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/dispatch"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/plugin"
	"github.com/telekom/smtp-notifier/pkg/system"
)

type Options struct {
	ConfigPath   string
	OutputWriter io.Writer
	// Dialer replaces the SMTP dialer of the dispatcher.
	Dialer mail.Dialer
	// Logger replaces the logger built from --debug.
	Logger *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

type runtimeState struct {
	configPath   string
	debug        bool
	verbose      bool
	outputFormat string
	writer       io.Writer
	dialer       mail.Dialer

	logger *zap.Logger
	store  config.Store
}

type runtimeKey struct{}

func NewRootCommand(opts Options) *cobra.Command {
	rt := &runtimeState{
		configPath: opts.ConfigPath,
		writer:     opts.OutputWriter,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
	}

	root := &cobra.Command{
		Use:           "smtp-notifier",
		Short:         "Deliver notifications by email through a primary and a fallback SMTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if !rt.debug {
				rt.debug = getEnvBool("DEBUG", false)
			}
			if !rt.verbose {
				rt.verbose = getEnvBool("VERBOSE", false)
			}
			if rt.outputFormat == "" {
				rt.outputFormat = getEnvString("OUTPUT", "")
			}
			if cmd.Name() == "version" {
				return nil
			}
			if rt.logger == nil {
				logger, err := system.NewLogger(rt.debug)
				if err != nil {
					return fmt.Errorf("failed to set up logger: %w", err)
				}
				rt.logger = logger
			}
			rt.store = config.NewFileStore(rt.configPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to the notifier configuration file (env SMTP_NOTIFIER_CONFIG)")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug level logging")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log every dispatch stage at info level")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: text, json, yaml")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewTestCommand(),
		NewSendCommand(),
		NewTemplateCommand(),
		NewPasswordCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) log() *zap.SugaredLogger {
	if rt.logger == nil {
		return zap.NewNop().Sugar()
	}
	return rt.logger.Sugar()
}

// loadConfig reads and validates the stored configuration.
func (rt *runtimeState) loadConfig() (config.Config, error) {
	cfg, err := rt.store.Get()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration %s: %w", rt.configPath, err)
	}
	return cfg, nil
}

// verboseStore lifts stage reports to info level when --verbose is set
// without touching the persisted flag.
type verboseStore struct {
	config.Store
}

func (s verboseStore) Get() (config.Config, error) {
	cfg, err := s.Store.Get()
	cfg.VerboseLogging = true
	return cfg, err
}

func (rt *runtimeState) dispatcher() *dispatch.Dispatcher {
	var opts []dispatch.Option
	if rt.dialer != nil {
		opts = append(opts, dispatch.WithDialer(rt.dialer))
	}
	var store config.Store = rt.store
	if rt.verbose {
		store = verboseStore{Store: rt.store}
	}
	return dispatch.New(store, rt.log(), opts...)
}

func (rt *runtimeState) plugin(d plugin.Dispatcher) *plugin.Plugin {
	return plugin.New(rt.store, d, rt.log(), plugin.WithReporter(plugin.ReporterFunc(func(title, message string) {
		rt.log().Infow("System message", "title", title, "message", message)
	})))
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer == nil {
		return os.Stdout
	}
	return rt.writer
}

// writeObject renders obj as JSON or YAML, or prints text for the text format.
func writeObject(w io.Writer, format string, obj any, text string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case "", "text":
		_, err := fmt.Fprintln(w, text)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
