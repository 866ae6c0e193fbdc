package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/smtp-notifier/pkg/metrics"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	fetchErr  error
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		if r.fetchErr != nil {
			return kafka.Message{}, r.fetchErr
		}
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestKafkaSourceRun(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"kind":"notice.message","data":{"type":"Download","title":"Done","text":"file.mkv"}}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"data":{"title":"default kind"}}`)},
		{Offset: 4, Value: []byte(`{"kind":"unrelated.kind","data":{}}`)},
	}}
	src := newKafkaSource(reader, system.NewTestLogger())

	var got []notification.Event
	src.Subscribe(notification.KindNoticeMessage, func(_ context.Context, ev notification.Event) {
		got = append(got, ev)
	})

	decodeErrors := testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues("kafka", "decode_error"))
	require.NoError(t, src.Run(context.Background()))

	require.Len(t, got, 2)
	assert.Equal(t, "Download", got[0].Type)
	assert.Equal(t, "Done", got[0].Title)
	assert.Equal(t, "default kind", got[1].Title)
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed, "undecodable messages are committed too")
	assert.Equal(t, decodeErrors+1, testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues("kafka", "decode_error")))

	require.NoError(t, src.Close())
	assert.True(t, reader.closed)
}

func TestKafkaSourceRunFetchError(t *testing.T) {
	src := newKafkaSource(&fakeReader{fetchErr: errors.New("broker down")}, system.NewTestLogger())
	err := src.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaSourceRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := newKafkaSource(&fakeReader{fetchErr: context.Canceled}, system.NewTestLogger())
	assert.NoError(t, src.Run(ctx))
}

func TestNewKafkaSourceValidation(t *testing.T) {
	_, err := NewKafkaSource(KafkaSourceConfig{Topic: "events"}, nil)
	assert.Error(t, err)

	_, err = NewKafkaSource(KafkaSourceConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	_, err = NewKafkaSource(KafkaSourceConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
		SASL:    &KafkaSASLConfig{Mechanism: "GSSAPI"},
	}, nil)
	assert.Error(t, err)

	_, err = NewKafkaSource(KafkaSourceConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
		TLS:     &KafkaTLSConfig{Enabled: true, CACert: []byte("not pem")},
	}, nil)
	assert.Error(t, err)

	src, err := NewKafkaSource(KafkaSourceConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
		SASL:    &KafkaSASLConfig{Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"},
		TLS:     &KafkaTLSConfig{Enabled: true},
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, mech := range []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"} {
		m, err := buildSASLMechanism(&KafkaSASLConfig{Mechanism: mech, Username: "u", Password: "p"})
		require.NoError(t, err, mech)
		assert.Equal(t, mech, m.Name())
	}
}
