package service

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-records/library/internal/errs"
	"github.com/Astemirdum/library-records/library/internal/model"
	"github.com/Astemirdum/library-records/library/internal/repository"
	"github.com/Astemirdum/library-records/library/internal/telemetry"
)

const (
	borrowSpan           = "borrow"
	borrowEvent          = "borrow_attempt"
	borrowDuration       = "borrow_book_duration"
	borrowFailCounter    = "borrow_failures_total"
	borrowSuccessCounter = "borrow_success_total"
)

const (
	OutcomeSuccess          = "success"
	OutcomeBorrowerNotFound = "borrower_not_found"
	OutcomeBookNotFound     = "book_not_found"
	OutcomeBookNotAvailable = "book_not_available"
	OutcomeError            = "error"
)

type Service struct {
	log       *zap.Logger
	repo      repository.Repository
	telemetry telemetry.Recorder
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo repository.Repository, rec telemetry.Recorder, log *zap.Logger, opts ...Option) *Service {
	if rec == nil {
		rec = telemetry.Nop{}
	}
	s := &Service{
		log:       log.Named("service"),
		repo:      repo,
		telemetry: rec,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	return s.repo.CreateBook(ctx, req)
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}

func (s *Service) CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error) {
	return s.repo.CreateBorrower(ctx, req)
}

func (s *Service) GetBorrower(ctx context.Context, borrowerID int) (model.Borrower, error) {
	borrower, err := s.repo.GetBorrower(ctx, borrowerID)
	if err != nil {
		return model.Borrower{}, err
	}
	if borrower == nil {
		return model.Borrower{}, errs.ErrBorrowerNotFound
	}
	return *borrower, nil
}

// ListBorrowerLoans returns every loan of an existing borrower, oldest first.
func (s *Service) ListBorrowerLoans(ctx context.Context, borrowerID int) ([]model.Loan, error) {
	if _, err := s.GetBorrower(ctx, borrowerID); err != nil {
		return nil, err
	}
	return s.repo.ListLoansByBorrower(ctx, borrowerID)
}

func (s *Service) GetLoan(ctx context.Context, loanID int) (model.Loan, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return model.Loan{}, err
	}
	if loan == nil {
		return model.Loan{}, errs.ErrLoanNotFound
	}
	return *loan, nil
}

// BorrowBook lends a book to a borrower.
// Checks run borrower first, then book existence, then availability.
// The availability flip is a conditional update inside the same transaction
// as the loan insert, so of two concurrent borrows of one book exactly one wins.
func (s *Service) BorrowBook(ctx context.Context, bookID, borrowerID int) (model.Loan, error) {
	start := time.Now()
	attrs := map[string]string{
		"book.id":     strconv.Itoa(bookID),
		"borrower.id": strconv.Itoa(borrowerID),
	}
	ctx, span := s.telemetry.StartSpan(ctx, borrowSpan, attrs)

	var loan model.Loan
	err := s.repo.InTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		borrower, err := repo.GetBorrower(ctx, borrowerID)
		if err != nil {
			return err
		}
		if borrower == nil {
			return errs.ErrBorrowerNotFound
		}

		book, err := repo.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return errs.ErrBookNotFound
		}
		if !book.Available {
			return errs.ErrBookNotAvailable
		}

		ok, err := repo.MarkBookBorrowed(ctx, bookID)
		if err != nil {
			return err
		}
		if !ok {
			// lost the race to a concurrent borrow
			return errs.ErrBookNotAvailable
		}

		loan, err = repo.CreateLoan(ctx, model.Loan{
			BookID:     bookID,
			BorrowerID: borrowerID,
			BorrowedAt: s.now().UTC(),
		})
		return err
	})

	outcome := borrowOutcome(err)
	s.report(ctx, span, attrs, outcome, time.Since(start))
	if err != nil {
		if outcome == OutcomeError {
			s.log.Error("BorrowBook", zap.Int("book_id", bookID), zap.Int("borrower_id", borrowerID), zap.Error(err))
			return model.Loan{}, errors.Wrap(err, "borrow book")
		}
		s.log.Debug("BorrowBook rejected", zap.Int("book_id", bookID), zap.Int("borrower_id", borrowerID), zap.String("outcome", outcome))
		return model.Loan{}, err
	}
	return loan, nil
}

func (s *Service) report(ctx context.Context, span telemetry.Span, attrs map[string]string, outcome string, elapsed time.Duration) {
	eventAttrs := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		eventAttrs[k] = v
	}
	eventAttrs["outcome"] = outcome

	s.telemetry.RecordEvent(ctx, borrowEvent, eventAttrs)
	s.telemetry.RecordDuration(ctx, borrowDuration, float64(elapsed)/float64(time.Millisecond))
	if outcome == OutcomeSuccess {
		s.telemetry.IncrementCounter(ctx, borrowSuccessCounter, nil)
		span.End(telemetry.StatusOK, map[string]string{"outcome": outcome})
		return
	}
	s.telemetry.IncrementCounter(ctx, borrowFailCounter, map[string]string{"reason": outcome})
	spanAttrs := map[string]string{"outcome": outcome}
	if outcome == OutcomeBookNotAvailable {
		spanAttrs["already_borrowed"] = "true"
	}
	span.End(outcome, spanAttrs)
}

func borrowOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errs.ErrBorrowerNotFound):
		return OutcomeBorrowerNotFound
	case errors.Is(err, errs.ErrBookNotFound):
		return OutcomeBookNotFound
	case errors.Is(err, errs.ErrBookNotAvailable):
		return OutcomeBookNotAvailable
	default:
		return OutcomeError
	}
}
