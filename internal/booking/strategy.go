package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
)

// Recommendation is advisory input from an external suggestion source. It
// annotates a booking attempt but never overrides validation.
type Recommendation struct {
	StartMinute int
	Confidence  float64
}

// Advisor recommends a start time for a doctor/date. Implementations live
// outside the engine.
type Advisor interface {
	Recommend(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time) (*Recommendation, error)
}

// Strategy attempts one way of placing a booking. errFallthrough hands the
// request to the next strategy in the chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req BookingRequest) (*appointment.Appointment, error)
}

var errFallthrough = errors.New("strategy declined")

// advisoryStrategy books at the advisor's recommended time. Any advisor
// failure, a recommendation below the confidence floor, or a conflict at the
// recommended time declines the request so the deterministic path runs.
type advisoryStrategy struct {
	svc           *Service
	advisor       Advisor
	minConfidence float64
	log           zerolog.Logger
}

func (s *advisoryStrategy) Name() string { return "advisory" }

func (s *advisoryStrategy) Attempt(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	rec, err := s.advisor.Recommend(ctx, req.DoctorID, req.PatientID, req.Date)
	if err != nil {
		s.log.Warn().Err(err).Msg("advisor failed, falling back")
		return nil, errFallthrough
	}
	if rec == nil || rec.Confidence < s.minConfidence {
		return nil, errFallthrough
	}

	// The recommendation still goes through full validation; the advisor is
	// never trusted directly.
	advised := req
	advised.StartMinute = rec.StartMinute

	appt, err := s.svc.Book(ctx, advised)
	if err != nil {
		var conflict *appointment.ConflictError
		if errors.As(err, &conflict) || errors.Is(err, ErrDoctorDayBusy) {
			s.log.Info().Err(err).Msg("advised time rejected, falling back")
			return nil, errFallthrough
		}
		return nil, err
	}
	return appt, nil
}

// deterministicStrategy books exactly what the caller asked for. It is
// always last in the chain and always authoritative.
type deterministicStrategy struct {
	svc *Service
}

func (s *deterministicStrategy) Name() string { return "deterministic" }

func (s *deterministicStrategy) Attempt(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	return s.svc.Book(ctx, req)
}

// Chain runs strategies in order until one produces a definitive result.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewChain builds the booking chain: the advisory strategy first when an
// advisor is configured, the deterministic strategy always last.
func NewChain(svc *Service, advisor Advisor, minConfidence float64, log zerolog.Logger) *Chain {
	var strategies []Strategy
	if advisor != nil {
		strategies = append(strategies, &advisoryStrategy{
			svc:           svc,
			advisor:       advisor,
			minConfidence: minConfidence,
			log:           log,
		})
	}
	strategies = append(strategies, &deterministicStrategy{svc: svc})
	return &Chain{strategies: strategies, log: log}
}

// Book tries each strategy in order. A declined strategy falls through; any
// other outcome, success or failure, is final.
func (c *Chain) Book(ctx context.Context, req BookingRequest) (*appointment.Appointment, error) {
	for _, st := range c.strategies {
		appt, err := st.Attempt(ctx, req)
		if errors.Is(err, errFallthrough) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.log.Debug().Str("strategy", st.Name()).Str("appointment_id", appt.ID.String()).Msg("booking placed")
		return appt, nil
	}
	// The deterministic strategy never falls through; this is unreachable
	// with a correctly built chain.
	return nil, errors.New("no booking strategy produced a result")
}
