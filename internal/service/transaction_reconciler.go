package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studyon/internal/billing"
	"studyon/internal/model"
	"studyon/internal/repository"
	"studyon/internal/session"
)

// Reconcile joins billing transactions with the local catalog by course
// code. Order is preserved; transactions without a known course keep a nil
// Course.
func Reconcile(txs []billing.Transaction, courses []model.Course) []model.TransactionView {
	byCode := make(map[string]model.Course, len(courses))
	for _, c := range courses {
		byCode[c.Code] = c
	}

	views := make([]model.TransactionView, 0, len(txs))
	for _, tx := range txs {
		view := model.TransactionView{
			Type:      tx.Type,
			Amount:    tx.Amount,
			CreatedAt: tx.CreatedAt,
		}
		if tx.CourseCode != "" {
			if c, ok := byCode[tx.CourseCode]; ok {
				view.Course = &model.CourseRef{ID: c.ID, Code: c.Code, Title: c.Title}
			}
		}
		views = append(views, view)
	}
	return views
}

type TransactionLister interface {
	ListTransactions(ctx context.Context, token string) ([]billing.Transaction, error)
}

// TransactionService returns the user's billing history joined with the catalog.
type TransactionService interface {
	History(ctx context.Context, s *session.Session) ([]model.TransactionView, error)
}

type transactionService struct {
	billing TransactionLister
	courses repository.CourseRepository
	logger  zerolog.Logger
}

func NewTransactionService(b TransactionLister, courses repository.CourseRepository, logger zerolog.Logger) TransactionService {
	return &transactionService{
		billing: b,
		courses: courses,
		logger:  logger.With().Str("service", "TransactionService").Logger(),
	}
}

func (t *transactionService) History(ctx context.Context, s *session.Session) ([]model.TransactionView, error) {
	if s == nil {
		return nil, session.ErrSessionInvalid
	}

	var (
		txs     []billing.Transaction
		courses []model.Course
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = t.billing.ListTransactions(gctx, s.AccessToken)
		return err
	})
	g.Go(func() error {
		var err error
		courses, err = t.courses.ListCourses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading transaction history: %w", err)
	}

	views := Reconcile(txs, courses)
	t.logger.Debug().Str("username", s.Claims.Username).Int("count", len(views)).Msg("Transaction history loaded")
	return views, nil
}
