package security

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/pkg/db/models"
	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

const defaultQueueSize = 256

// Event is a security observation on its way to the audit log. Severity is
// derived from the type at write time, never supplied by callers.
type Event struct {
	Type      enums.SecurityEventType
	UserID    *uuid.UUID
	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string
	Details   map[string]any
}

// Service records security events. Recording is always best-effort: a payment
// request never fails because its audit trail could not be written.
type Service interface {
	Log(ctx context.Context, event Event)
	LogAsync(event Event)
	Close()
}

// ServiceParams wires the security event service dependencies.
type ServiceParams struct {
	Repo      Repository
	Logger    *logger.Logger
	QueueSize int
}

type service struct {
	repo  Repository
	logg  *logger.Logger
	queue chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewService wires the security event service and starts its async drainer.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("security repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	svc := &service{
		repo:  params.Repo,
		logg:  params.Logger,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go svc.drain()
	return svc, nil
}

// Log writes the event synchronously. Failures are logged and swallowed.
func (s *service) Log(ctx context.Context, event Event) {
	if err := s.repo.CreateLog(ctx, s.toModel(event)); err != nil {
		logCtx := s.logg.WithField(ctx, "event_type", event.Type.String())
		s.logg.Error(logCtx, "security log write failed", err)
	}
}

// LogAsync queues the event for the background drainer. When the queue is
// full the event is dropped after a warning; blocking the request path on
// audit backpressure would be worse than a gap in the trail.
func (s *service) LogAsync(event Event) {
	select {
	case s.queue <- event:
	default:
		ctx := s.logg.WithField(context.Background(), "event_type", event.Type.String())
		s.logg.Warn(ctx, "security event queue full, event dropped")
	}
}

// Close stops the drainer after flushing queued events.
func (s *service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

func (s *service) drain() {
	defer close(s.done)
	for event := range s.queue {
		s.Log(context.Background(), event)
	}
}

func (s *service) toModel(event Event) *models.SecurityLog {
	entry := &models.SecurityLog{
		Type:     event.Type,
		Severity: enums.SeverityFor(event.Type),
		UserID:   event.UserID,
	}
	if event.IPAddress != "" {
		entry.IPAddress = &event.IPAddress
	}
	if event.UserAgent != "" {
		entry.UserAgent = &event.UserAgent
	}
	if event.Endpoint != "" {
		entry.Endpoint = &event.Endpoint
	}
	if event.Method != "" {
		entry.Method = &event.Method
	}
	if len(event.Details) > 0 {
		if payload, err := json.Marshal(event.Details); err == nil {
			entry.Details = payload
		}
	}
	return entry
}
