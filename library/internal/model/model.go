package model

import (
	"time"
)

type Book struct {
	ID        int    `json:"id" db:"id"`
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	Available bool   `json:"available" db:"available"`
}

type CreateBookRequest struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
}

type Borrower struct {
	ID    int    `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

type CreateBorrowerRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type Loan struct {
	ID         int       `json:"id" db:"id"`
	BookID     int       `json:"book_id" db:"book_id"`
	BorrowerID int       `json:"borrower_id" db:"borrower_id"`
	BorrowedAt time.Time `json:"borrowed_at" db:"borrowed_at"`
}
