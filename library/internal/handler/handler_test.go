package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Astemirdum/library-records/library/internal/errs"
	"github.com/Astemirdum/library-records/library/internal/handler"
	service_mocks "github.com/Astemirdum/library-records/library/internal/handler/mocks"
	"github.com/Astemirdum/library-records/library/internal/model"
	"github.com/Astemirdum/library-records/pkg/validate"
)

var borrowedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type request struct {
	method string
	target string
	body   string
}

type response struct {
	expectedCode int
	expectedBody string
}

type mockBehavior func(r *service_mocks.MockLibraryService)

type testCase struct {
	name         string
	mockBehavior mockBehavior
	request      request
	response     response
}

func run(t *testing.T, route func(e *echo.Echo, h *handler.Handler), tests []testCase) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			log := zap.NewExample().Named("test")
			h := handler.New(svc, log)

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			route(e, h)

			var body io.Reader = http.NoBody
			if tt.request.body != "" {
				body = strings.NewReader(tt.request.body)
			}
			r := httptest.NewRequest(tt.request.method, tt.request.target, body)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func noCall(r *service_mocks.MockLibraryService) {}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.GET("/books", h.ListBooks) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBooks(context.Background()).Return([]model.Book{
					{ID: 1, Title: "1984", Author: "George Orwell", Available: true},
				}, nil)
			},
			request: request{method: http.MethodGet, target: "/books"},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[{"id":1,"title":"1984","author":"George Orwell","available":true}]`,
			},
		},
		{
			name: "ok. empty",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBooks(context.Background()).Return([]model.Book{}, nil)
			},
			request:  request{method: http.MethodGet, target: "/books"},
			response: response{expectedCode: http.StatusOK, expectedBody: `[]`},
		},
		{
			name: "err. internal",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBooks(context.Background()).Return(nil, errors.New("db internal"))
			},
			request:  request{method: http.MethodGet, target: "/books"},
			response: response{expectedCode: http.StatusInternalServerError, expectedBody: `{"message":"db internal"}`},
		},
	})
}

func TestHandler_CreateBook(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.POST("/books", h.CreateBook) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().CreateBook(context.Background(), model.CreateBookRequest{Title: "1984", Author: "George Orwell"}).
					Return(model.Book{ID: 1, Title: "1984", Author: "George Orwell", Available: true}, nil)
			},
			request: request{method: http.MethodPost, target: "/books", body: `{"title":"1984","author":"George Orwell"}`},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"title":"1984","author":"George Orwell","available":true}`,
			},
		},
		{
			name:         "err. author required",
			mockBehavior: noCall,
			request:      request{method: http.MethodPost, target: "/books", body: `{"title":"1984"}`},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"Key: 'CreateBookRequest.Author' Error:Field validation for 'Author' failed on the 'required' tag"}`,
			},
		},
	})
}

func TestHandler_BorrowBook(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.POST("/books/:book_id/borrow", h.BorrowBook) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().BorrowBook(context.Background(), 1, 1).
					Return(model.Loan{ID: 1, BookID: 1, BorrowerID: 1, BorrowedAt: borrowedAt}, nil)
			},
			request: request{method: http.MethodPost, target: "/books/1/borrow?borrower_id=1"},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":1,"book_id":1,"borrower_id":1,"borrowed_at":"2024-03-01T12:00:00Z"}`,
			},
		},
		{
			name: "err. book not found",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().BorrowBook(context.Background(), 99999, 1).Return(model.Loan{}, errs.ErrBookNotFound)
			},
			request:  request{method: http.MethodPost, target: "/books/99999/borrow?borrower_id=1"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Book not found"}`},
		},
		{
			name: "err. borrower not found",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().BorrowBook(context.Background(), 1, 42).Return(model.Loan{}, errs.ErrBorrowerNotFound)
			},
			request:  request{method: http.MethodPost, target: "/books/1/borrow?borrower_id=42"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Borrower not found"}`},
		},
		{
			name: "err. book not available",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().BorrowBook(context.Background(), 1, 1).Return(model.Loan{}, errs.ErrBookNotAvailable)
			},
			request:  request{method: http.MethodPost, target: "/books/1/borrow?borrower_id=1"},
			response: response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"Book not available"}`},
		},
		{
			name: "err. id beyond int32",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().BorrowBook(context.Background(), 3000000000, 1).Return(model.Loan{}, errs.ErrBookNotFound)
			},
			request:  request{method: http.MethodPost, target: "/books/3000000000/borrow?borrower_id=1"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Book not found"}`},
		},
		{
			name:         "err. borrower_id required",
			mockBehavior: noCall,
			request:      request{method: http.MethodPost, target: "/books/1/borrow"},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"borrower_id is required"}`},
		},
		{
			name:         "err. borrower_id invalid",
			mockBehavior: noCall,
			request:      request{method: http.MethodPost, target: "/books/1/borrow?borrower_id=abc"},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"borrower_id is invalid"}`},
		},
		{
			name:         "err. book_id invalid",
			mockBehavior: noCall,
			request:      request{method: http.MethodPost, target: "/books/x/borrow?borrower_id=1"},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"book_id is invalid"}`},
		},
	})
}

func TestHandler_CreateBorrower(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.POST("/borrowers", h.CreateBorrower) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().CreateBorrower(context.Background(), model.CreateBorrowerRequest{Name: "Alice", Email: "alice@x.com"}).
					Return(model.Borrower{ID: 1, Name: "Alice", Email: "alice@x.com"}, nil)
			},
			request: request{method: http.MethodPost, target: "/borrowers", body: `{"name":"Alice","email":"alice@x.com"}`},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"name":"Alice","email":"alice@x.com"}`,
			},
		},
		{
			name:         "err. invalid email",
			mockBehavior: noCall,
			request:      request{method: http.MethodPost, target: "/borrowers", body: `{"name":"Alice","email":"not-an-email"}`},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"Key: 'CreateBorrowerRequest.Email' Error:Field validation for 'Email' failed on the 'email' tag"}`,
			},
		},
	})
}

func TestHandler_GetBorrower(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.GET("/borrowers/:borrower_id", h.GetBorrower) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetBorrower(context.Background(), 1).
					Return(model.Borrower{ID: 1, Name: "Alice", Email: "alice@x.com"}, nil)
			},
			request:  request{method: http.MethodGet, target: "/borrowers/1"},
			response: response{expectedCode: http.StatusOK, expectedBody: `{"id":1,"name":"Alice","email":"alice@x.com"}`},
		},
		{
			name: "err. not found",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetBorrower(context.Background(), 2).Return(model.Borrower{}, errs.ErrBorrowerNotFound)
			},
			request:  request{method: http.MethodGet, target: "/borrowers/2"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Borrower not found"}`},
		},
		{
			name: "err. id beyond int32",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetBorrower(context.Background(), 3000000000).Return(model.Borrower{}, errs.ErrBorrowerNotFound)
			},
			request:  request{method: http.MethodGet, target: "/borrowers/3000000000"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Borrower not found"}`},
		},
		{
			name:         "err. id invalid",
			mockBehavior: noCall,
			request:      request{method: http.MethodGet, target: "/borrowers/abc"},
			response:     response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"borrower_id is invalid"}`},
		},
	})
}

func TestHandler_GetBorrowedBooks(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.GET("/borrowers/:borrower_id/books", h.GetBorrowedBooks) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBorrowerLoans(context.Background(), 1).
					Return([]model.Loan{{ID: 1, BookID: 1, BorrowerID: 1, BorrowedAt: borrowedAt}}, nil)
			},
			request: request{method: http.MethodGet, target: "/borrowers/1/books"},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `[{"id":1,"book_id":1,"borrower_id":1,"borrowed_at":"2024-03-01T12:00:00Z"}]`,
			},
		},
		{
			name: "ok. no loans",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBorrowerLoans(context.Background(), 3).Return([]model.Loan{}, nil)
			},
			request:  request{method: http.MethodGet, target: "/borrowers/3/books"},
			response: response{expectedCode: http.StatusOK, expectedBody: `[]`},
		},
		{
			name: "err. borrower not found",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().ListBorrowerLoans(context.Background(), 2).Return(nil, errs.ErrBorrowerNotFound)
			},
			request:  request{method: http.MethodGet, target: "/borrowers/2/books"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Borrower not found"}`},
		},
	})
}

func TestHandler_GetLoan(t *testing.T) {
	t.Parallel()
	run(t, func(e *echo.Echo, h *handler.Handler) { e.GET("/loans/:loan_id", h.GetLoan) }, []testCase{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetLoan(context.Background(), 5).
					Return(model.Loan{ID: 5, BookID: 2, BorrowerID: 1, BorrowedAt: borrowedAt}, nil)
			},
			request: request{method: http.MethodGet, target: "/loans/5"},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":5,"book_id":2,"borrower_id":1,"borrowed_at":"2024-03-01T12:00:00Z"}`,
			},
		},
		{
			name: "err. not found",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().GetLoan(context.Background(), 6).Return(model.Loan{}, errs.ErrLoanNotFound)
			},
			request:  request{method: http.MethodGet, target: "/loans/6"},
			response: response{expectedCode: http.StatusNotFound, expectedBody: `{"message":"Loan not found"}`},
		},
	})
}

func TestHandler_NewRouter(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLibraryService(c)
	h := handler.New(svc, zap.NewNop())
	e := h.NewRouter()

	svc.EXPECT().BorrowBook(gomock.Any(), 1, 1).
		Return(model.Loan{ID: 1, BookID: 1, BorrowerID: 1, BorrowedAt: borrowedAt}, nil)
	svc.EXPECT().ListBooks(gomock.Any()).Return([]model.Book{}, nil)

	tests := []struct {
		method, target string
		expectedCode   int
	}{
		{http.MethodGet, "/manage/health", http.StatusOK},
		{http.MethodPost, "/api/books/1/borrow/?borrower_id=1", http.StatusOK},
		{http.MethodGet, "/api/books/", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.target, http.NoBody)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		require.Equal(t, tt.expectedCode, w.Code, tt.target)
	}
}

func TestHandler_NewRouter_Tracing(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockLibraryService(c)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := handler.New(svc, zap.NewNop(), handler.WithTracerProvider(tp)).NewRouter()

	svc.EXPECT().BorrowBook(gomock.Any(), 1, 1).DoAndReturn(
		func(ctx context.Context, bookID, borrowerID int) (model.Loan, error) {
			// workflow spans nest under the request span
			require.True(t, trace.SpanContextFromContext(ctx).IsValid())
			return model.Loan{ID: 1, BookID: bookID, BorrowerID: borrowerID, BorrowedAt: borrowedAt}, nil
		})

	for _, target := range []string{"/api/books/1/borrow?borrower_id=1", "/manage/health"} {
		method := http.MethodPost
		if target == "/manage/health" {
			method = http.MethodGet
		}
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(method, target, http.NoBody))
		require.Equal(t, http.StatusOK, w.Code, target)
	}

	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
}

func TestHandler_NewRouter_Swagger(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	e := handler.New(service_mocks.NewMockLibraryService(c), zap.NewNop()).NewRouter()

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"title": "Library API"`)
	require.Contains(t, w.Body.String(), `"/books/{book_id}/borrow"`)
}
