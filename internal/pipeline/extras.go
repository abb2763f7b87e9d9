package pipeline

import (
	"context"

	"git.home.luguber.info/inful/extrunner/internal/changes"
	"git.home.luguber.info/inful/extrunner/internal/config"
	"git.home.luguber.info/inful/extrunner/internal/eventstore"
	"git.home.luguber.info/inful/extrunner/internal/logfields"
	"git.home.luguber.info/inful/extrunner/internal/notify"
	"git.home.luguber.info/inful/extrunner/internal/observability"
)

// textfileWriter is implemented by recorders that can export to the node-exporter
// textfile collector.
type textfileWriter interface {
	WriteTextfile(path string) error
}

func (s *Service) appendEvent(ctx context.Context, build func() (*eventstore.BaseEvent, error)) {
	if s.history == nil {
		return
	}
	e, err := build()
	if err == nil {
		err = s.history.Append(ctx, e)
	}
	if err != nil {
		observability.WarnContext(ctx, "Failed to record run history", logfields.Error(err))
	}
}

func (s *Service) recordStart(ctx context.Context, runID string, cfg *config.Config, rs *changes.RunnerState) {
	s.appendEvent(ctx, func() (*eventstore.BaseEvent, error) {
		p := eventstore.RunStartedPayload{Mode: string(cfg.Mode), Manifest: len(rs.Order)}
		if rs.Author != nil {
			p.Author = rs.Author.Username
			p.PR = rs.Author.PR
		}
		return eventstore.NewRunStarted(runID, p)
	})
}

// runExtras feeds metrics, history, notifications and the mirror. Nothing here can fail
// the run.
func (s *Service) runExtras(ctx context.Context, cfg *config.Config, result *Result) {
	rs := result.State

	for _, e := range rs.Entries() {
		cm := notify.ChangeSummary(rs, e)
		s.recorder.IncChanges(cm.Change, cm.Outcome)
		s.appendEvent(ctx, func() (*eventstore.BaseEvent, error) {
			return eventstore.NewChangeRecorded(result.RunID, eventstore.ChangeRecordedPayload{
				Extension: cm.Extension,
				Change:    cm.Change,
				Outcome:   cm.Outcome,
				Version:   cm.Version,
				Errors:    cm.Errors,
				Warnings:  cm.Warnings,
			})
		})
	}

	counts := rs.Counts()
	s.appendEvent(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewRunCompleted(result.RunID, eventstore.RunCompletedPayload{
			Failed:     result.Failed,
			Changes:    counts.Total,
			Success:    counts.Success,
			Warnings:   counts.Warnings,
			Failures:   counts.Failed,
			RunErrors:  len(rs.Errors),
			DurationMS: result.Duration.Milliseconds(),
		})
	})

	s.recorder.ObserveRunDuration(result.Duration)
	s.recorder.SetRunFailed(result.Failed)
	if tw, ok := s.recorder.(textfileWriter); ok && cfg.Metrics.Textfile != "" {
		if err := tw.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			observability.WarnContext(ctx, "Failed to write metrics textfile", logfields.Error(err))
		}
	}

	if s.notifier != nil {
		msg := notify.NewRunMessage(result.RunID, string(cfg.Mode), rs)
		if err := s.notifier.PublishRun(ctx, msg); err != nil {
			observability.WarnContext(ctx, "Failed to publish run notification", logfields.Error(err))
		}
	}

	if s.mirror != nil {
		if err := s.mirror.Sync(ctx, rs); err != nil {
			observability.WarnContext(ctx, "Failed to mirror dist directory", logfields.Error(err))
		}
	}
}
