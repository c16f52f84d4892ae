package room

import (
	"time"

	"go.uber.org/zap"

	"partyserver/models"
)

const (
	DefaultMaxParticipants = 10
	MinParticipants        = 2
	MaxParticipantsLimit   = 50
	DefaultCodeAttempts    = 10
	MaxRoomNameLength      = 100
)

// Notifier receives lifecycle events after their transaction has committed.
type Notifier interface {
	Notify(code string, typ models.NotificationType, message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, models.NotificationType, string) {}

type options struct {
	now             func() time.Time
	codes           CodeGenerator
	maxAttempts     int
	defaultCapacity int
	logger          *zap.Logger
}

// Option configures a Registry, Service or Reaper.
type Option func(*options)

// WithClock overrides the time source; the default is time.Now in UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(o *options) { o.codes = g }
}

func WithMaxCodeAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

func WithDefaultCapacity(n int) Option {
	return func(o *options) { o.defaultCapacity = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		now:             func() time.Time { return time.Now().UTC() },
		maxAttempts:     DefaultCodeAttempts,
		defaultCapacity: DefaultMaxParticipants,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codes == nil {
		o.codes = NewRandomCodeGenerator(nil)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = DefaultCodeAttempts
	}
	return o
}
