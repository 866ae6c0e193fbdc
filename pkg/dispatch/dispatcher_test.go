package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mail"
	"github.com/telekom/smtp-notifier/pkg/mail/mailtest"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

type fakeSession struct {
	sendErr error
	sent    int
	closed  int
	data    bytes.Buffer
}

func (s *fakeSession) Send(_ string, _ []string, msg io.WriterTo) error {
	s.sent++
	if s.sendErr != nil {
		return s.sendErr
	}
	_, err := msg.WriteTo(&s.data)
	return err
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	dialErr  map[config.Slot]error
	sendErr  map[config.Slot]error
	dials    []config.Slot
	sessions map[config.Slot]*fakeSession

	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dialErr:  map[config.Slot]error{},
		sendErr:  map[config.Slot]error{},
		sessions: map[config.Slot]*fakeSession{},
	}
}

func (d *fakeDialer) Dial(_ context.Context, p config.ServerProfile) (mail.Session, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if n <= seen || d.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, p.Slot)
	if err := d.dialErr[p.Slot]; err != nil {
		return nil, err
	}
	s := &fakeSession{sendErr: d.sendErr[p.Slot]}
	d.sessions[p.Slot] = s
	return s, nil
}

func (d *fakeDialer) Dials() []config.Slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]config.Slot(nil), d.dials...)
}

func server(host string) config.ServerConfig {
	return config.ServerConfig{
		Enabled:       true,
		Host:          host,
		Port:          25,
		SenderAddress: "bot@example.com",
		Password:      "secret",
	}
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.Enabled = true
	cfg.DataDir = t.TempDir()
	cfg.Primary = server("primary.example.com")
	cfg.Secondary = server("secondary.example.com")
	return cfg
}

func newDispatcher(_ *testing.T, cfg config.Config, d mail.Dialer, opts ...Option) *Dispatcher {
	opts = append([]Option{WithDialer(d)}, opts...)
	return New(config.NewMemoryStore(cfg), system.NewTestLogger(), opts...)
}

var event = notification.Event{Type: "Download", Title: "Done", Text: "file.mkv"}

func TestDispatchPrimarySuccessSkipsSecondary(t *testing.T) {
	fd := newFakeDialer()
	res, err := newDispatcher(t, testConfig(t), fd).Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, []config.Slot{config.SlotPrimary}, fd.Dials())
	assert.Equal(t, Succeeded, res.Primary)
	assert.Equal(t, NotAttempted, res.Secondary)
	assert.Equal(t, "Primary server sent the email successfully!", res.Summary)
	assert.True(t, res.Surface)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, fd.sessions[config.SlotPrimary].closed)
}

func TestDispatchPrimaryFailureFallsBackOnce(t *testing.T) {
	fd := newFakeDialer()
	fd.dialErr[config.SlotPrimary] = mailerr.New(mailerr.ErrConnection, mailerr.ReasonConnectionRefused, "refused", nil)

	res, err := newDispatcher(t, testConfig(t), fd).Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, []config.Slot{config.SlotPrimary, config.SlotSecondary}, fd.Dials())
	assert.Equal(t, Failed, res.Primary)
	assert.Equal(t, Succeeded, res.Secondary)
	assert.Equal(t, "Secondary server sent the email successfully! Primary server failed to send the email!", res.Summary)
	assert.False(t, res.Surface)
}

func TestDispatchPrimaryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Primary.Enabled = false
	fd := newFakeDialer()

	res, err := newDispatcher(t, cfg, fd).Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, []config.Slot{config.SlotSecondary}, fd.Dials())
	assert.Equal(t, "Primary server was not started! Secondary server sent the email successfully!", res.Summary)
}

func TestDispatchBothFail(t *testing.T) {
	fd := newFakeDialer()
	refused := mailerr.New(mailerr.ErrConnection, mailerr.ReasonConnectionRefused, "refused", nil)
	fd.dialErr[config.SlotPrimary] = refused
	fd.dialErr[config.SlotSecondary] = refused

	res, err := newDispatcher(t, testConfig(t), fd).Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "All servers failed to send the email!", res.Summary)
	assert.True(t, res.Surface)
}

func TestDispatchRejectsUnknownTypeBeforeNetwork(t *testing.T) {
	fd := newFakeDialer()
	_, err := newDispatcher(t, testConfig(t), fd).Dispatch(context.Background(),
		notification.Event{Type: "Telepathy", Title: "x"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, mailerr.ErrInvalidMessageType))
	assert.Empty(t, fd.Dials())
}

func TestDispatchAllowsUnknownTypeWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowUnrecognizedTypes = true
	fd := newFakeDialer()

	res, err := newDispatcher(t, cfg, fd).Dispatch(context.Background(), notification.Event{Type: "Telepathy", Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.Primary)
}

func TestDispatchNoServerEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Primary.Enabled = false
	cfg.Secondary.Enabled = false
	fd := newFakeDialer()

	_, err := newDispatcher(t, cfg, fd).Dispatch(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mailerr.ErrNoServerEnabled))
	assert.Empty(t, fd.Dials())
}

func TestDispatchIncompleteConfigNeverDials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Primary.Password = ""
	fd := newFakeDialer()

	res, err := newDispatcher(t, cfg, fd).Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []config.Slot{config.SlotSecondary}, fd.Dials())
	assert.Equal(t, Failed, res.Primary)
	assert.Equal(t, Succeeded, res.Secondary)
}

func TestDispatchBuildFailureClosesSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.CustomTemplate = true // no template file in DataDir
	cfg.Secondary.Enabled = false
	fd := newFakeDialer()

	res, err := newDispatcher(t, cfg, fd).Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Primary)
	s := fd.sessions[config.SlotPrimary]
	require.NotNil(t, s)
	assert.Equal(t, 0, s.sent)
	assert.Equal(t, 1, s.closed)
	assert.Equal(t, "Primary server failed to send the email! Secondary server was not started! Unable to send the email!", res.Summary)
}

func TestTestRunPrimaryOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secondary.Enabled = false
	fd := newFakeDialer()

	res, err := newDispatcher(t, cfg, fd).Test(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []config.Slot{config.SlotPrimary}, fd.Dials())
	assert.Equal(t, "Primary server sent the test email successfully! Secondary server was not started!", res.Summary)
	assert.True(t, res.Surface)
	assert.True(t, res.TestRun)

	body := fd.sessions[config.SlotPrimary].data.String()
	assert.Contains(t, body, "Subject: Testing primary server configuration")
	assert.Contains(t, body, "Content-ID: <image>")
}

func TestTestRunExercisesBothServers(t *testing.T) {
	fd := newFakeDialer()

	res, err := newDispatcher(t, testConfig(t), fd).Test(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []config.Slot{config.SlotPrimary, config.SlotSecondary}, fd.Dials())
	assert.Equal(t, "All servers sent the test email successfully!", res.Summary)
	assert.Contains(t, fd.sessions[config.SlotSecondary].data.String(), "Subject: Testing secondary server configuration")
}

func TestDispatchPrimarySendAuthFailure(t *testing.T) {
	fd := newFakeDialer()
	fd.sendErr[config.SlotPrimary] = mailerr.New(mailerr.ErrAuthentication, mailerr.ReasonSendAuth, "authentication required", nil)

	res, err := newDispatcher(t, testConfig(t), fd).Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, "Secondary server sent the email successfully! Primary server failed to send the email!", res.Summary)
	primary := fd.sessions[config.SlotPrimary]
	assert.Equal(t, 1, primary.sent)
	assert.Equal(t, 1, primary.closed, "failed primary session must be closed")
	assert.Equal(t, 1, fd.sessions[config.SlotSecondary].closed)
}

func TestDispatchReportsStages(t *testing.T) {
	var reports []StageReport
	fd := newFakeDialer()
	d := newDispatcher(t, testConfig(t), fd, WithObserver(ObserverFunc(func(r StageReport) {
		reports = append(reports, r)
	})))

	res, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)

	var stages []Stage
	for _, r := range reports {
		assert.Equal(t, res.ID, r.DispatchID)
		stages = append(stages, r.Stage)
	}
	assert.Equal(t, []Stage{
		StageValidate, StageConfig, StageConnect, StageRecipient, StageBuild, StageSend, StageSelect, StageSummary,
	}, stages)
	last := reports[len(reports)-1]
	assert.Equal(t, SeverityInfo, last.Severity)
	assert.Equal(t, res.Summary, last.Message)
}

func TestDispatchImageWarningDoesNotFail(t *testing.T) {
	var warnings []StageReport
	fd := newFakeDialer()
	d := newDispatcher(t, testConfig(t), fd, WithObserver(ObserverFunc(func(r StageReport) {
		if r.Severity == SeverityWarning {
			warnings = append(warnings, r)
		}
	})))

	ev := event
	ev.Image = notification.Image{Ref: "not an image"}
	res, err := d.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, res.Primary)
	require.Len(t, warnings, 1)
	assert.Equal(t, StageImage, warnings[0].Stage)
	assert.Equal(t, mailerr.ReasonImageUnrecognized, warnings[0].Reason)
}

func TestDispatchIsSerialized(t *testing.T) {
	fd := newFakeDialer()
	fd.delay = 20 * time.Millisecond
	d := newDispatcher(t, testConfig(t), fd)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), event)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, fd.Dials(), 4)
	assert.Equal(t, int32(1), fd.maxSeen.Load())
}

func TestDispatchOverSMTP(t *testing.T) {
	primary := mailtest.NewServer(t, mailtest.Options{RejectAuth: true})
	secondary := mailtest.NewServer(t, mailtest.Options{})

	cfg := testConfig(t)
	cfg.Primary.Host, cfg.Primary.Port = primary.Host(), primary.Port()
	cfg.Secondary.Host, cfg.Secondary.Port = secondary.Host(), secondary.Port()
	cfg.Recipients = "ops@example.com, dev@example.com"
	cfg.SenderName = "Ops Bot"

	d := New(config.NewMemoryStore(cfg), system.NewTestLogger())
	res, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, Failed, res.Primary)
	assert.Equal(t, Succeeded, res.Secondary)
	assert.Empty(t, primary.Messages())
	msgs := secondary.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, msgs[0].To)
	assert.Contains(t, string(msgs[0].Data), `From: "Ops Bot" <bot@example.com>`)
}
