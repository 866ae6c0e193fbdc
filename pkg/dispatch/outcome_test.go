package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		primary, secondary Outcome
		testRun            bool
		want               string
	}{
		{Succeeded, Succeeded, false, "All servers sent the email successfully!"},
		{Succeeded, Succeeded, true, "All servers sent the test email successfully!"},
		{Succeeded, Failed, false, "Primary server sent the email successfully! Secondary server failed to send the email!"},
		{Succeeded, Failed, true, "Primary server sent the test email successfully! Secondary server failed to send the test email!"},
		{Succeeded, NotAttempted, false, "Primary server sent the email successfully!"},
		{Succeeded, NotAttempted, true, "Primary server sent the test email successfully! Secondary server was not started!"},
		{Failed, Succeeded, false, "Secondary server sent the email successfully! Primary server failed to send the email!"},
		{Failed, Succeeded, true, "Secondary server sent the test email successfully! Primary server failed to send the test email!"},
		{Failed, Failed, false, "All servers failed to send the email!"},
		{Failed, Failed, true, "All servers failed to send the test email!"},
		{Failed, NotAttempted, false, "Primary server failed to send the email! Secondary server was not started! Unable to send the email!"},
		{Failed, NotAttempted, true, "Primary server failed to send the test email! Secondary server was not started! Unable to send the test email!"},
		{NotAttempted, Succeeded, false, "Primary server was not started! Secondary server sent the email successfully!"},
		{NotAttempted, Succeeded, true, "Primary server was not started! Secondary server sent the test email successfully!"},
		{NotAttempted, Failed, false, "Primary server was not started! Secondary server failed to send the email!"},
		{NotAttempted, Failed, true, "Primary server was not started! Secondary server failed to send the test email!"},
	}
	for _, tt := range tests {
		name := tt.primary.String() + "/" + tt.secondary.String()
		if tt.testRun {
			name += "/test"
		}
		t.Run(name, func(t *testing.T) {
			got, err := Summarize(tt.primary, tt.secondary, tt.testRun)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarizeNothingAttempted(t *testing.T) {
	for _, testRun := range []bool{false, true} {
		_, err := Summarize(NotAttempted, NotAttempted, testRun)
		assert.True(t, errors.Is(err, ErrInconsistentOutcome))
	}
}

func TestShouldSurface(t *testing.T) {
	tests := []struct {
		primary, secondary Outcome
		testRun            bool
		want               bool
	}{
		{Succeeded, NotAttempted, false, true},
		{Succeeded, Failed, false, true},
		{Failed, Failed, false, true},
		{Failed, Succeeded, false, false},
		{Failed, NotAttempted, false, false},
		{NotAttempted, Succeeded, false, false},
		{NotAttempted, Failed, false, false},
		{Failed, Succeeded, true, true},
		{NotAttempted, Failed, true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldSurface(tt.primary, tt.secondary, tt.testRun),
			"%s/%s test=%v", tt.primary, tt.secondary, tt.testRun)
	}
}
