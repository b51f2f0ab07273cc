package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/config"
	redisclient "github.com/hackgods/clinic-request-desk/internal/redis"
)

type Service struct {
	repo       Repository
	locker     redisclient.Locker
	reconciler *Reconciler
	board      *Board
	events     EventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, events EventPublisher, cfg config.Config, logger zerolog.Logger) (*Service, error) {
	reconciler, err := NewReconciler(repo, cfg.DefaultDoctorID, cfg.PatientCache)
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:       repo,
		locker:     locker,
		reconciler: reconciler,
		board:      NewBoard(cfg.Location),
		events:     events,
		logger:     logger.With().Str("component", "request_desk").Logger(),
		now:        time.Now,
	}, nil
}

// Refresh re-reads requests and appointments from the store and rebuilds the
// desk.
func (s *Service) Refresh(ctx context.Context) ([]BoardEntry, error) {
	requests, err := s.repo.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	appts, err := s.repo.ListAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	s.board.Load(requests, appts)
	return s.board.Snapshot(FilterAll), nil
}

// Requests returns the desk, loading it on first use.
func (s *Service) Requests(ctx context.Context, f Filter) ([]BoardEntry, error) {
	if !s.board.Loaded() {
		if _, err := s.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.board.Snapshot(f), nil
}

func (s *Service) SubmitRequest(ctx context.Context, in NewRequest) (*Request, error) {
	in, err := ValidateNewRequest(in, s.now())
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateRequest(ctx, Request{
		PatientName: in.PatientName,
		Phone:       in.Phone,
		Age:         in.Age,
		Email:       in.Email,
		RequestedAt: in.RequestedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if s.board.Loaded() {
		s.board.Add(ClassifiedRequest{Request: *created, Status: RequestPending})
	}

	s.logEvent(ctx, created.ID, EventRequestSubmitted, map[string]any{
		"requested_at": created.RequestedAt,
	})
	return created, nil
}

// AcceptRequest confirms a request: it finds or creates the patient and books
// the appointment. Accepting a request twice returns the first result.
func (s *Service) AcceptRequest(ctx context.Context, id int64) (*AcceptResult, error) {
	var (
		req *Request
		res *AcceptResult
	)

	err := s.guard(ctx, id, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetRequestByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		res, err = s.reconciler.Accept(ctx, *req)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("request_id", id).Msg("accept failed")
		return nil, err
	}

	_, _ = s.board.Apply(ClassifiedRequest{Request: *req}, func(cr ClassifiedRequest) (ClassifiedRequest, error) {
		return MarkAccepted(cr, res.AppointmentID), nil
	})
	s.board.Recompute()

	if res.AlreadyAccepted {
		s.logger.Info().Int64("request_id", id).Int64("appointment_id", res.AppointmentID).Msg("request was already accepted")
		return res, nil
	}

	s.logEvent(ctx, id, EventRequestAccepted, map[string]any{
		"patient_id":      res.PatientID,
		"appointment_id":  res.AppointmentID,
		"patient_created": res.PatientCreated,
	})
	return res, nil
}

// RejectRequest records the rejection durably; rejected requests stop
// counting toward conflicts.
func (s *Service) RejectRequest(ctx context.Context, id int64) (*ClassifiedRequest, error) {
	var rejected ClassifiedRequest

	err := s.guard(ctx, id, func(ctx context.Context) error {
		current, err := s.classifyOne(ctx, id)
		if err != nil {
			return err
		}
		next, err := RejectRequest(current)
		if err != nil {
			return err
		}
		stored, err := s.repo.MarkRequestRejected(ctx, id, s.now())
		if err != nil {
			return fmt.Errorf("mark request rejected: %w", err)
		}
		next.Request = *stored
		rejected = next
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("request_id", id).Msg("reject failed")
		return nil, err
	}

	_, _ = s.board.Apply(rejected, func(ClassifiedRequest) (ClassifiedRequest, error) {
		return rejected, nil
	})
	s.board.Recompute()

	s.logEvent(ctx, id, EventRequestRejected, map[string]any{})
	return &rejected, nil
}

// ResolveConflict clears the conflict flag on one request. It only changes
// the desk; nothing is written to the store except the audit event.
func (s *Service) ResolveConflict(ctx context.Context, id int64) (*ClassifiedRequest, error) {
	if _, err := s.Requests(ctx, FilterAll); err != nil {
		return nil, err
	}

	current, ok := s.board.Get(id)
	if !ok {
		return nil, ErrRequestNotFound
	}

	if !s.board.Begin(id) {
		return nil, ErrRequestInFlight
	}
	defer s.board.End(id)

	resolved, err := s.board.Apply(current, ResolveConflict)
	if err != nil {
		return nil, err
	}
	s.board.MarkResolved(id)

	s.logEvent(ctx, id, EventRequestConflictResolved, map[string]any{})
	return &resolved, nil
}

// guard holds the desk's in-flight marker and the cross-process request lock
// while fn runs.
func (s *Service) guard(ctx context.Context, id int64, fn func(ctx context.Context) error) error {
	if !s.board.Begin(id) {
		return ErrRequestInFlight
	}
	defer s.board.End(id)

	err := s.locker.WithRequestLock(ctx, id, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrRequestInFlight
	}
	return err
}

func (s *Service) classifyOne(ctx context.Context, id int64) (ClassifiedRequest, error) {
	req, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return ClassifiedRequest{}, fmt.Errorf("load request: %w", err)
	}
	appts, err := s.repo.ListAppointmentsForRequest(ctx, id, RequestTag(req.PatientName, id))
	if err != nil {
		return ClassifiedRequest{}, fmt.Errorf("load request appointments: %w", err)
	}
	return ClassifyRequests([]Request{*req}, appts)[0], nil
}

func (s *Service) logEvent(ctx context.Context, requestID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	id := requestID
	ev := EventLog{
		EventType: eventType,
		RequestID: &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("request_id", requestID).Msg("insert event log")
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Error().Err(err).Str("event", eventType).Int64("request_id", requestID).Msg("publish event")
		}
	}

	s.logger.Info().Str("event", eventType).Int64("request_id", requestID).Msg("request event")
}
