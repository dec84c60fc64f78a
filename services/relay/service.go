package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"otprelay-backend/lib/notify"
	"otprelay-backend/lib/otp"
	"otprelay-backend/lib/scrapers/smspanel"
	"otprelay-backend/lib/timezone"
	"otprelay-backend/services/relay/db"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("services/relay")

// Fetcher is what the loop needs from the panel client.
type Fetcher interface {
	FetchWindow(ctx context.Context, w smspanel.Window) (any, error)
}

type Options struct {
	// PollInterval defaults to 30s
	PollInterval time.Duration
	// MaxJitter is a random addition to each sleep, defaults to 5s.
	// Zero keeps the jitter, set it negative to disable.
	MaxJitter time.Duration
}

// Service runs the poll loop: fetch a day window, normalize, extract
// codes, dedupe against the ledger, deliver, then record. Everything
// happens on one goroutine; the session, ledger and history store are
// owned exclusively by the loop.
type Service struct {
	fetcher  Fetcher
	ledger   *Ledger
	notifier notify.Notifier
	// optional best-effort copy of each delivery, never gates the ledger
	mirror  notify.Notifier
	qry     *db.Queries
	options Options

	mu       sync.Mutex
	lastPoll time.Time
	lastErr  error
}

func NewService(fetcher Fetcher, ledger *Ledger, notifier notify.Notifier, database *sql.DB, options Options) *Service {
	if options.PollInterval <= 0 {
		options.PollInterval = time.Second * 30
	}
	if options.MaxJitter == 0 {
		options.MaxJitter = time.Second * 5
	}

	var qry *db.Queries
	if database != nil {
		qry = db.New(database)
	}

	return &Service{
		fetcher:  fetcher,
		ledger:   ledger,
		notifier: notifier,
		qry:      qry,
		options:  options,
	}
}

func (s *Service) SetMirror(n notify.Notifier) {
	s.mirror = n
}

// Status reports the last completed poll and its error, for health
// reporting.
func (s *Service) Status() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPoll, s.lastErr
}

func (s *Service) Run(ctx context.Context) {
	slog.InfoContext(ctx, "start relay loop", "interval", s.options.PollInterval)

	for {
		err := s.PollOnce(ctx)

		s.mu.Lock()
		s.lastPoll = timezone.Now()
		s.lastErr = err
		s.mu.Unlock()

		if err != nil {
			// nothing in the pipeline is fatal, log and wait for the
			// next interval
			slog.ErrorContext(ctx, "poll failed", "err", err)
		}

		select {
		case <-time.After(s.options.PollInterval + s.jitter()):
		case <-ctx.Done():
			slog.InfoContext(ctx, "stop relay loop")
			return
		}
	}
}

func (s *Service) jitter() time.Duration {
	if s.options.MaxJitter <= 0 {
		return 0
	}
	n, err := random.IntRange(0, int(s.options.MaxJitter/time.Millisecond))
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// PollOnce performs one fetch -> normalize -> extract -> dedupe ->
// deliver pass over the current calendar day.
func (s *Service) PollOnce(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "PollOnce")
	defer span.End()

	window := smspanel.DayWindow(timezone.Now())
	payload, err := s.fetcher.FetchWindow(ctx, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return err
	}

	records := smspanel.Normalize(payload)
	span.SetAttributes(attribute.Int("record_count", len(records)))

	var errlist []error
	for _, rec := range records {
		code, ok := otp.Extract(rec.Text)
		if !ok {
			if otp.HasKeyword(rec.Text) {
				slog.DebugContext(
					ctx, "no code recovered from likely otp message",
					"source", rec.Source,
					"channel", rec.Channel,
				)
			}
			continue
		}

		if s.ledger.Contains(rec.Source, code) {
			continue
		}

		err := s.deliver(ctx, rec, code)
		if err != nil {
			errlist = append(errlist, err)
		}
	}

	err = errors.Join(errlist...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some deliveries failed")
	}
	return err
}

func (s *Service) deliver(ctx context.Context, rec smspanel.Record, code string) error {
	ctx, span := tracer.Start(ctx, "deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", rec.Source),
		attribute.String("channel", rec.Channel),
	)

	msg := notify.Message{
		Time:    rec.Timestamp,
		Source:  rec.Source,
		Channel: rec.Channel,
		Code:    code,
		Text:    rec.Text,
	}

	err := s.notifier.Notify(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		// the ledger stays untouched so the code is retried next poll
		return fmt.Errorf("deliver code for %s: %w", rec.Source, err)
	}

	s.ledger.Record(rec.Source, code)
	err = s.ledger.Persist()
	if err != nil {
		slog.WarnContext(ctx, "failed to persist ledger", "err", err)
	}

	if s.qry != nil {
		err := s.qry.CreateDelivery(ctx, db.CreateDeliveryParams{
			Source:      rec.Source,
			Code:        code,
			Channel:     rec.Channel,
			Message:     rec.Text,
			Deliveredat: timezone.Now().Unix(),
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to record delivery history", "err", err)
		}
	}

	if s.mirror != nil {
		err := s.mirror.Notify(ctx, msg)
		if err != nil {
			slog.WarnContext(ctx, "mirror notification failed", "err", err)
		}
	}

	slog.InfoContext(
		ctx, "delivered code",
		"source", rec.Source,
		"channel", rec.Channel,
	)
	return nil
}
