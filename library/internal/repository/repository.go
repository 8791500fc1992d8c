package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/Astemirdum/library-records/library/internal/errs"
	"github.com/Astemirdum/library-records/library/internal/model"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

// Repository is a thin pass-through over the books, borrowers and loans tables.
// Get methods return a nil entity and a nil error when the row is absent.
type Repository interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBook(ctx context.Context, bookID int) (*model.Book, error)
	// MarkBookBorrowed flips availability to false only if the book is still available.
	// It reports whether a row was changed.
	MarkBookBorrowed(ctx context.Context, bookID int) (bool, error)

	CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error)
	GetBorrower(ctx context.Context, borrowerID int) (*model.Borrower, error)

	CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error)
	GetLoan(ctx context.Context, loanID int) (*model.Loan, error)
	ListLoansByBorrower(ctx context.Context, borrowerID int) ([]model.Loan, error)

	// InTx runs fn against a transaction-bound Repository.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	if db == nil {
		return nil, errors.New("nil pool")
	}
	return &repository{
		db:   db,
		pool: db,
		log:  log.Named("repo"),
	}, nil
}

const (
	booksTableName     = `books`
	borrowersTableName = `borrowers`
	loansTableName     = `loans`
)

var (
	qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	bookColumns     = []string{"id", "title", "author", "available"}
	borrowerColumns = []string{"id", "name", "email"}
	loanColumns     = []string{"id", "book_id", "borrower_id", "borrowed_at"}
)

func (r *repository) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.pool == nil {
		// already inside a transaction
		return fn(ctx, r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, log: r.log})
	})
}

func (r *repository) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "available").
		Values(req.Title, req.Author, true).
		Suffix("returning " + strings.Join(bookColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	book, err := collectOne[model.Book](ctx, r.db, query, args)
	if err != nil {
		r.log.Error("CreateBook", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return model.Book{}, errors.Wrap(err, "create book")
	}
	return *book, nil
}

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBooks", zap.String("query", query))
	books, err := collectAll[model.Book](ctx, r.db, query, args)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	return books, nil
}

func (r *repository) GetBook(ctx context.Context, bookID int) (*model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": bookID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	book, err := collectOne[model.Book](ctx, r.db, query, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get book")
	}
	return book, nil
}

func (r *repository) MarkBookBorrowed(ctx context.Context, bookID int) (bool, error) {
	query, args, err := qb.Update(booksTableName).
		Set("available", false).
		Where(sq.Eq{"id": bookID, "available": true}).
		ToSql()
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "mark book borrowed")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error) {
	query, args, err := qb.Insert(borrowersTableName).
		Columns("name", "email").
		Values(req.Name, req.Email).
		Suffix("returning " + strings.Join(borrowerColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Borrower{}, err
	}
	borrower, err := collectOne[model.Borrower](ctx, r.db, query, args)
	if err != nil {
		r.log.Error("CreateBorrower", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return model.Borrower{}, errors.Wrap(err, "create borrower")
	}
	return *borrower, nil
}

func (r *repository) GetBorrower(ctx context.Context, borrowerID int) (*model.Borrower, error) {
	query, args, err := qb.Select(borrowerColumns...).
		From(borrowersTableName).
		Where(sq.Eq{"id": borrowerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	borrower, err := collectOne[model.Borrower](ctx, r.db, query, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get borrower")
	}
	return borrower, nil
}

func (r *repository) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	query, args, err := qb.Insert(loansTableName).
		Columns("book_id", "borrower_id", "borrowed_at").
		Values(loan.BookID, loan.BorrowerID, loan.BorrowedAt).
		Suffix("returning " + strings.Join(loanColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	created, err := collectOne[model.Loan](ctx, r.db, query, args)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			if strings.Contains(pgErr.ConstraintName, "borrower") {
				return model.Loan{}, errs.ErrBorrowerNotFound
			}
			return model.Loan{}, errs.ErrBookNotFound
		}
		r.log.Error("CreateLoan", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return model.Loan{}, errors.Wrap(err, "create loan")
	}
	created.BorrowedAt = created.BorrowedAt.UTC()
	return *created, nil
}

func (r *repository) GetLoan(ctx context.Context, loanID int) (*model.Loan, error) {
	query, args, err := qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"id": loanID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	loan, err := collectOne[model.Loan](ctx, r.db, query, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get loan")
	}
	loan.BorrowedAt = loan.BorrowedAt.UTC()
	return loan, nil
}

func (r *repository) ListLoansByBorrower(ctx context.Context, borrowerID int) ([]model.Loan, error) {
	query, args, err := qb.Select(loanColumns...).
		From(loansTableName).
		Where(sq.Eq{"borrower_id": borrowerID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	loans, err := collectAll[model.Loan](ctx, r.db, query, args)
	if err != nil {
		return nil, errors.Wrap(err, "list loans")
	}
	for i := range loans {
		loans[i].BorrowedAt = loans[i].BorrowedAt.UTC()
	}
	return loans, nil
}

func collectOne[T any](ctx context.Context, db dbtx, query string, args []any) (*T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	v, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectAll[T any](ctx context.Context, db dbtx, query string, args []any) ([]T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
