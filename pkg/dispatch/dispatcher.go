// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/notification"
)

const defaultImageTimeout = 10 * time.Second

// Result is the reduced outcome of one dispatch.
type Result struct {
	ID        string
	TestRun   bool
	Primary   Outcome
	Secondary Outcome
	Summary   string
	// Surface is set when Summary should be shown to the user.
	Surface bool
}

// Dispatcher delivers events through the configured SMTP servers.
type Dispatcher struct {
	mu sync.Mutex

	store    config.Store
	dialer   mail.Dialer
	images   *mail.ImageLoader
	observer Observer
	log      *zap.SugaredLogger
}

type Option func(*Dispatcher)

// WithDialer replaces the SMTP dialer.
func WithDialer(d mail.Dialer) Option {
	return func(disp *Dispatcher) { disp.dialer = d }
}

// WithObserver adds an observer next to the log observer.
func WithObserver(o Observer) Option {
	return func(disp *Dispatcher) {
		disp.observer = Observers{disp.observer, o}
	}
}

func WithImageLoader(l *mail.ImageLoader) Option {
	return func(disp *Dispatcher) { disp.images = l }
}

// New returns a dispatcher reading its configuration from store on every
// dispatch.
func New(store config.Store, log *zap.SugaredLogger, opts ...Option) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("dispatch")
	d := &Dispatcher{
		store:    store,
		dialer:   &mail.SMTPDialer{},
		images:   mail.NewImageLoader(defaultImageTimeout),
		observer: NewLogObserver(log),
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers ev. An error is only returned when the event is rejected
// before any server is contacted; delivery failures are reported through the
// outcomes and the summary.
func (d *Dispatcher) Dispatch(ctx context.Context, ev notification.Event) (Result, error) {
	return d.run(ctx, ev, false)
}

// Test sends the synthetic test email through the enabled servers.
func (d *Dispatcher) Test(ctx context.Context) (Result, error) {
	return d.run(ctx, notification.Event{}, true)
}

func (d *Dispatcher) run(ctx context.Context, ev notification.Event, testRun bool) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := Result{ID: uuid.NewString(), TestRun: testRun}
	cfg, err := d.store.Get()
	if err != nil {
		return res, fmt.Errorf("failed to load notifier configuration: %w", err)
	}
	r := &reporter{obs: d.observer, id: res.ID, verbose: cfg.VerboseLogging}

	if !cfg.ServersEnabled() {
		err := mailerr.New(mailerr.ErrNoServerEnabled, mailerr.ReasonNoServerEnabled,
			"neither the primary nor the secondary server is enabled", nil)
		r.fail(StageSelect, "", err)
		metrics.DispatchesRejected.WithLabelValues(string(mailerr.ReasonNoServerEnabled)).Inc()
		return res, err
	}

	params, err := ResolveParams(ev, ParamOptions{TestRun: testRun, AllowUnrecognized: cfg.AllowUnrecognizedTypes})
	if err != nil {
		r.fail(StageValidate, "", err)
		metrics.DispatchesRejected.WithLabelValues(string(mailerr.ReasonOf(err))).Inc()
		return res, err
	}
	r.emit(StageValidate, "", SeverityReport, "", fmt.Sprintf("message parameters valid, type %q", params.MsgType))

	policy := PolicyFor(cfg, testRun)
	prior := NotAttempted
	for _, slot := range []config.Slot{config.SlotPrimary, config.SlotSecondary} {
		ok, err := ShouldAttempt(slot, prior, policy)
		if err != nil {
			r.fail(StageSelect, slot, err)
			return res, err
		}
		outcome := NotAttempted
		if ok {
			outcome = d.attempt(ctx, cfg, slot, params, r)
		} else {
			r.emit(StageSelect, slot, SeverityReport, "", fmt.Sprintf("%s server skipped", slot))
		}
		if slot == config.SlotPrimary {
			res.Primary = outcome
		} else {
			res.Secondary = outcome
		}
		prior = outcome
	}

	res.Summary, err = Summarize(res.Primary, res.Secondary, testRun)
	if err != nil {
		r.fail(StageSummary, "", err)
		return res, err
	}
	res.Surface = ShouldSurface(res.Primary, res.Secondary, testRun)
	metrics.Dispatches.WithLabelValues(res.Primary.String(), res.Secondary.String(), strconv.FormatBool(testRun)).Inc()

	severity := SeverityInfo
	if res.Primary != Succeeded && res.Secondary != Succeeded {
		severity = SeverityError
	}
	r.emit(StageSummary, "", severity, "", res.Summary)
	return res, nil
}

// attempt runs the pipeline for one slot. Errors never leave this boundary.
func (d *Dispatcher) attempt(ctx context.Context, cfg config.Config, slot config.Slot, params Params, r *reporter) Outcome {
	if err := d.deliver(ctx, cfg, slot, params, r); err != nil {
		metrics.ServerAttempts.WithLabelValues(string(slot), Failed.String()).Inc()
		metrics.ServerAttemptFailures.WithLabelValues(string(slot), string(mailerr.ReasonOf(err))).Inc()
		return Failed
	}
	metrics.ServerAttempts.WithLabelValues(string(slot), Succeeded.String()).Inc()
	return Succeeded
}

func (d *Dispatcher) deliver(ctx context.Context, cfg config.Config, slot config.Slot, params Params, r *reporter) error {
	profile, err := cfg.ResolveServer(slot)
	if err != nil {
		r.fail(StageConfig, slot, err)
		return err
	}
	r.emit(StageConfig, slot, SeverityReport, "", fmt.Sprintf("%s server configuration resolved (%s, %s)", slot, profile.Addr(), profile.Encryption))

	sess, err := d.dialer.Dial(ctx, profile)
	if err != nil {
		r.fail(StageConnect, slot, err)
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.emit(StageClose, slot, SeverityWarning, "", fmt.Sprintf("closing %s server session: %v", slot, cerr))
		}
	}()
	r.emit(StageConnect, slot, SeverityReport, "", fmt.Sprintf("connected and logged in to %s", profile.Addr()))

	recipients := cfg.RecipientList(profile.SenderAddress)
	displayName := cfg.DisplayName(profile.SenderAddress)
	r.emit(StageRecipient, slot, SeverityReport, "", fmt.Sprintf("sending as %q to %d recipient(s)", displayName, len(recipients)))

	builder := mail.NewBuilder(cfg.CustomTemplatePath(), d.images)
	msg, warnings, err := builder.Build(ctx, mail.MessageParams{
		Title:          params.TitleFor(slot),
		Text:           params.Text,
		MsgType:        params.MsgType,
		UserID:         params.UserID,
		Image:          params.Image,
		SenderAddress:  profile.SenderAddress,
		SenderName:     displayName,
		Recipients:     recipients,
		SendImage:      cfg.SendImage,
		CustomTemplate: cfg.CustomTemplate,
	})
	for _, w := range warnings {
		metrics.ImageEmbedWarnings.WithLabelValues(string(w.Reason)).Inc()
		r.emit(StageImage, slot, SeverityWarning, w.Reason, "image not embedded: "+w.Message)
	}
	if err != nil {
		r.fail(StageBuild, slot, err)
		return err
	}
	r.emit(StageBuild, slot, SeverityReport, "", "message built")

	if err := sess.Send(profile.SenderAddress, recipients, msg); err != nil {
		metrics.MailSendFailure.WithLabelValues(profile.Host).Inc()
		r.fail(StageSend, slot, err)
		return err
	}
	metrics.MailSendSuccess.WithLabelValues(profile.Host).Inc()
	kind := "email"
	if params.TestRun {
		kind = "test email"
	}
	r.emit(StageSend, slot, SeverityInfo, "", fmt.Sprintf("%s server sent the %s", slot, kind))
	return nil
}

type reporter struct {
	obs     Observer
	id      string
	verbose bool
}

func (r *reporter) emit(stage Stage, slot config.Slot, sev Severity, reason mailerr.Reason, msg string) {
	if r.obs == nil {
		return
	}
	r.obs.Observe(StageReport{
		DispatchID: r.id,
		Stage:      stage,
		Slot:       slot,
		Message:    msg,
		Severity:   sev,
		Reason:     reason,
		Verbose:    r.verbose,
	})
}

func (r *reporter) fail(stage Stage, slot config.Slot, err error) {
	r.emit(stage, slot, SeverityError, mailerr.ReasonOf(err), err.Error())
}
