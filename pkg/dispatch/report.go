package dispatch

import (
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

type Severity int

const (
	// SeverityReport is step-by-step detail, only shown with verbose logging.
	SeverityReport Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "report"
	}
}

// Stage names a pipeline step.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageSelect    Stage = "select"
	StageConfig    Stage = "config"
	StageConnect   Stage = "connect"
	StageRecipient Stage = "recipients"
	StageBuild     Stage = "build"
	StageImage     Stage = "image"
	StageSend      Stage = "send"
	StageClose     Stage = "close"
	StageSummary   Stage = "summary"
)

// StageReport is emitted after each pipeline step.
type StageReport struct {
	DispatchID string
	Stage      Stage
	// Slot is empty for steps that are not bound to a server.
	Slot     config.Slot
	Message  string
	Severity Severity
	Reason   mailerr.Reason
	// Verbose is the verbose logging setting in effect for the dispatch.
	Verbose bool
}

// Observer receives stage reports synchronously, in pipeline order.
type Observer interface {
	Observe(StageReport)
}

type ObserverFunc func(StageReport)

func (f ObserverFunc) Observe(r StageReport) {
	f(r)
}

// Observers fans reports out to several observers.
type Observers []Observer

func (o Observers) Observe(r StageReport) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(r)
		}
	}
}

// LogObserver writes stage reports to a zap logger.
type LogObserver struct {
	log *zap.SugaredLogger
}

func NewLogObserver(log *zap.SugaredLogger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) Observe(r StageReport) {
	kv := []any{"dispatchID", r.DispatchID, "stage", r.Stage}
	if r.Slot != "" {
		kv = append(kv, "slot", r.Slot)
	}
	if r.Reason != "" {
		kv = append(kv, "reason", r.Reason)
	}
	switch r.Severity {
	case SeverityError:
		o.log.Errorw(r.Message, kv...)
	case SeverityWarning:
		o.log.Warnw(r.Message, kv...)
	case SeverityInfo:
		o.log.Infow(r.Message, kv...)
	default:
		if r.Verbose {
			o.log.Infow(r.Message, kv...)
		} else {
			o.log.Debugw(r.Message, kv...)
		}
	}
}
