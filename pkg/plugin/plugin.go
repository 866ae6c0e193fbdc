// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/dispatch"
	"github.com/telekom/smtp-notifier/pkg/events"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

// Title prefixes every message handed to the Reporter.
const Title = "SMTP notifier"

// Reasons an inbound event is not dispatched.
const (
	IgnoreDisabled     = "disabled"
	IgnoreChannel      = "channel"
	IgnoreEmpty        = "empty"
	IgnoreTypeFiltered = "type_filtered"
)

// Dispatcher is the delivery side the plugin drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notification.Event) (dispatch.Result, error)
	Test(ctx context.Context) (dispatch.Result, error)
}

// Reporter receives user-facing messages, the host's system message channel.
type Reporter interface {
	Report(title, message string)
}

type ReporterFunc func(title, message string)

func (f ReporterFunc) Report(title, message string) { f(title, message) }

type nopReporter struct{}

func (nopReporter) Report(string, string) {}

// Plugin ties the dispatcher to the host: it reacts to notice events and
// applies the one-shot configuration actions at start-up.
type Plugin struct {
	// mu guards read-modify-write cycles on the store.
	mu sync.Mutex

	store    config.Store
	disp     Dispatcher
	reporter Reporter
	log      *zap.SugaredLogger
}

type Option func(*Plugin)

func WithReporter(r Reporter) Option {
	return func(p *Plugin) {
		if r != nil {
			p.reporter = r
		}
	}
}

func New(store config.Store, d Dispatcher, log *zap.SugaredLogger, opts ...Option) *Plugin {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Plugin{
		store:    store,
		disp:     d,
		reporter: nopReporter{},
		log:      log.Named("plugin"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init brings the template file and the stored configuration in line, applies
// pending template actions, enforces that an enabled plugin has at least one
// enabled server and finally runs a requested test dispatch.
func (p *Plugin) Init(ctx context.Context) error {
	p.mu.Lock()
	cfg, err := p.store.Get()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to load notifier configuration: %w", err)
	}

	dirty, err := p.syncTemplateFile(&cfg)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	applied, err := p.applyTemplateActions(&cfg)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	dirty = dirty || applied

	if cfg.Enabled && !cfg.ServersEnabled() {
		cfg.Enabled = false
		cfg.TestRun = false
		if err := p.store.Put(cfg); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to persist notifier configuration: %w", err)
		}
		p.mu.Unlock()
		msg := "no SMTP server is enabled, the notifier has been disabled"
		p.log.Warn(msg)
		p.reporter.Report(Title, msg)
		return nil
	}
	if dirty {
		if err := p.store.Put(cfg); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to persist notifier configuration: %w", err)
		}
	}
	// A disabled notifier sends nothing, not even the test email.
	testRun := cfg.Enabled && cfg.TestRun
	p.mu.Unlock()

	if testRun {
		return p.runTest(ctx)
	}
	return nil
}

// runTest sends the test email, clears the flag and reports the outcome.
func (p *Plugin) runTest(ctx context.Context) error {
	res, derr := p.disp.Test(ctx)

	p.mu.Lock()
	cfg, err := p.store.Get()
	if err == nil {
		cfg.TestRun = false
		err = p.store.Put(cfg)
	}
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear test flag: %w", err)
	}

	if derr != nil {
		p.log.Errorw("Test dispatch failed", "error", derr)
		p.reporter.Report(Title, "test email failed: "+derr.Error())
		return nil
	}
	p.log.Infow("Test dispatch finished", "dispatchID", res.ID, "summary", res.Summary)
	p.reporter.Report(Title, res.Summary)
	return nil
}

// syncTemplateFile creates a missing custom template file from the stored
// content, or the default when nothing is stored. An existing file that
// differs from the stored content wins unless a save or restore is pending.
func (p *Plugin) syncTemplateFile(cfg *config.Config) (bool, error) {
	fs := mail.NewFileTemplateStore(cfg.CustomTemplatePath())
	if !fs.Exists() {
		content := cfg.TemplateContent
		source := "stored configuration"
		if content == "" {
			content = mail.DefaultTemplate()
			source = "default template"
		}
		if err := fs.Write(content); err != nil {
			return false, err
		}
		p.log.Infow("Created custom template file", "path", fs.Path(), "source", source)
		return false, nil
	}
	if cfg.SaveTemplate || cfg.RestoreDefaultTemplate {
		return false, nil
	}
	content, err := fs.Read()
	if err != nil {
		return false, err
	}
	if content == cfg.TemplateContent {
		return false, nil
	}
	cfg.TemplateContent = content
	p.log.Infow("Custom template file differs from stored content, adopting file", "path", fs.Path())
	return true, nil
}

// applyTemplateActions runs the one-shot save and restore flags. Save takes
// precedence; when both are set restore is dropped.
func (p *Plugin) applyTemplateActions(cfg *config.Config) (bool, error) {
	fs := mail.NewFileTemplateStore(cfg.CustomTemplatePath())
	switch {
	case cfg.SaveTemplate:
		if err := fs.Write(cfg.TemplateContent); err != nil {
			return false, err
		}
		cfg.SaveTemplate = false
		msg := "custom template saved"
		if cfg.RestoreDefaultTemplate {
			cfg.RestoreDefaultTemplate = false
			msg = "saving and restoring the template cannot both be requested, restore skipped; custom template saved"
			p.log.Warn(msg)
		} else {
			p.log.Info(msg)
		}
		p.reporter.Report(Title, msg)
		return true, nil
	case cfg.RestoreDefaultTemplate:
		if err := fs.Write(mail.DefaultTemplate()); err != nil {
			return false, err
		}
		cfg.TemplateContent = mail.DefaultTemplate()
		cfg.RestoreDefaultTemplate = false
		msg := "default template restored"
		p.log.Info(msg)
		p.reporter.Report(Title, msg)
		return true, nil
	}
	return false, nil
}

// ShouldHandle reports whether ev is dispatched under cfg and, if not, why.
func ShouldHandle(cfg config.Config, ev notification.Event) (bool, string) {
	switch {
	case !cfg.Enabled:
		return false, IgnoreDisabled
	case ev.Channel != "":
		return false, IgnoreChannel
	case ev.Title == "" && ev.Text == "":
		return false, IgnoreEmpty
	case !cfg.AllowsType(ev.Type) && !cfg.AllowUnrecognizedTypes:
		return false, IgnoreTypeFiltered
	}
	return true, ""
}

// HandleEvent dispatches ev unless it is filtered out. The bool reports
// whether a dispatch ran.
func (p *Plugin) HandleEvent(ctx context.Context, ev notification.Event) (dispatch.Result, bool, error) {
	cfg, err := p.store.Get()
	if err != nil {
		return dispatch.Result{}, false, fmt.Errorf("failed to load notifier configuration: %w", err)
	}
	if ok, reason := ShouldHandle(cfg, ev); !ok {
		metrics.EventsIgnored.WithLabelValues(reason).Inc()
		fields := append([]interface{}{"reason", reason}, system.EventFields(ev)...)
		if reason == IgnoreEmpty {
			p.log.Warnw("Event has neither title nor text", fields...)
		} else {
			p.log.Debugw("Event ignored", fields...)
		}
		return dispatch.Result{}, false, nil
	}

	res, err := p.disp.Dispatch(ctx, ev)
	if err != nil {
		p.log.Errorw("Dispatch rejected", append([]interface{}{"error", err}, system.EventFields(ev)...)...)
		return res, true, err
	}
	if res.Surface {
		p.reporter.Report(Title, res.Summary)
	}
	return res, true, nil
}

// Subscribe registers the plugin for notice events on src.
func (p *Plugin) Subscribe(src events.Source) {
	src.Subscribe(notification.KindNoticeMessage, func(ctx context.Context, ev notification.Event) {
		if _, _, err := p.HandleEvent(ctx, ev); err != nil {
			p.log.Errorw("Failed to handle notification event", append([]interface{}{"error", err}, system.EventFields(ev)...)...)
		}
	})
}

// Template returns the custom template: the file when present, otherwise
// the stored content, otherwise the packaged default.
func (p *Plugin) Template() (string, error) {
	cfg, err := p.store.Get()
	if err != nil {
		return "", fmt.Errorf("failed to load notifier configuration: %w", err)
	}
	fs := mail.NewFileTemplateStore(cfg.CustomTemplatePath())
	if fs.Exists() {
		return fs.Read()
	}
	if cfg.TemplateContent != "" {
		return cfg.TemplateContent, nil
	}
	return mail.DefaultTemplate(), nil
}

// SaveTemplate writes content as the custom template and stores it.
func (p *Plugin) SaveTemplate(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("template content is empty")
	}
	return p.writeTemplate(content, "custom template saved")
}

// RestoreDefaultTemplate overwrites the custom template with the default.
func (p *Plugin) RestoreDefaultTemplate() error {
	return p.writeTemplate(mail.DefaultTemplate(), "default template restored")
}

func (p *Plugin) writeTemplate(content, msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, err := p.store.Get()
	if err != nil {
		return fmt.Errorf("failed to load notifier configuration: %w", err)
	}
	if err := mail.NewFileTemplateStore(cfg.CustomTemplatePath()).Write(content); err != nil {
		return err
	}
	cfg.TemplateContent = content
	cfg.SaveTemplate = false
	cfg.RestoreDefaultTemplate = false
	if err := p.store.Put(cfg); err != nil {
		return fmt.Errorf("failed to persist notifier configuration: %w", err)
	}
	p.log.Infow(strings.ToUpper(msg[:1])+msg[1:], "path", cfg.CustomTemplatePath())
	p.reporter.Report(Title, msg)
	return nil
}
