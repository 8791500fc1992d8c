package handler

import (
	"context"

	"github.com/Astemirdum/library-records/library/internal/model"
	"github.com/Astemirdum/library-records/library/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	BorrowBook(ctx context.Context, bookID, borrowerID int) (model.Loan, error)

	CreateBorrower(ctx context.Context, req model.CreateBorrowerRequest) (model.Borrower, error)
	GetBorrower(ctx context.Context, borrowerID int) (model.Borrower, error)
	ListBorrowerLoans(ctx context.Context, borrowerID int) ([]model.Loan, error)

	GetLoan(ctx context.Context, loanID int) (model.Loan, error)
}

var _ LibraryService = (*service.Service)(nil)
