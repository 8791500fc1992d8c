package handler

import (
	"net/http"
	"strconv"

	md "github.com/Astemirdum/library-records/pkg/middleware"

	"github.com/Astemirdum/library-records/library/internal/errs"
	"github.com/Astemirdum/library-records/library/internal/model"
	"github.com/Astemirdum/library-records/pkg/validate"
	_ "github.com/Astemirdum/library-records/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const serviceName = "library-api"

type Handler struct {
	librarySvc     LibraryService
	log            *zap.Logger
	tracerProvider trace.TracerProvider
}

type Option func(*Handler)

// WithTracerProvider sets the provider the request spans are started from.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) {
		h.tracerProvider = tp
	}
}

func New(librarySvc LibraryService, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		librarySvc: librarySvc,
		log:        log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPost},
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	var traceOpts []otelecho.Option
	if h.tracerProvider != nil {
		traceOpts = append(traceOpts, otelecho.WithTracerProvider(h.tracerProvider))
	}

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api",
		otelecho.Middleware(serviceName, traceOpts...),
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.GET("/books", h.ListBooks)
	api.POST("/books", h.CreateBook)
	api.POST("/books/:book_id/borrow", h.BorrowBook)

	api.POST("/borrowers", h.CreateBorrower)
	api.GET("/borrowers/:borrower_id", h.GetBorrower)
	api.GET("/borrowers/:borrower_id/books", h.GetBorrowedBooks)

	api.GET("/loans/:loan_id", h.GetLoan)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// ListBooks godoc
// @Summary      List books
// @Tags         books
// @Produce      json
// @Success      200  {array}   model.Book
// @Failure      500  {object}  echo.HTTPError
// @Router       /books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.librarySvc.ListBooks(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

// CreateBook godoc
// @Summary      Create a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        book  body      model.CreateBookRequest  true  "Book"
// @Success      201   {object}  model.Book
// @Failure      400   {object}  echo.HTTPError
// @Failure      500   {object}  echo.HTTPError
// @Router       /books [post]
func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return httpError(invalid(err.Error()))
	}
	if err := c.Validate(req); err != nil {
		return httpError(invalid(err.Error()))
	}
	book, err := h.librarySvc.CreateBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

// BorrowBook godoc
// @Summary      Borrow a book
// @Tags         books
// @Produce      json
// @Param        book_id      path      int  true  "Book ID"
// @Param        borrower_id  query     int  true  "Borrower ID"
// @Success      200          {object}  model.Loan
// @Failure      400          {object}  echo.HTTPError
// @Failure      404          {object}  echo.HTTPError
// @Failure      500          {object}  echo.HTTPError
// @Router       /books/{book_id}/borrow [post]
func (h *Handler) BorrowBook(c echo.Context) error {
	bookID, err := strconv.Atoi(c.Param("book_id"))
	if err != nil {
		return httpError(invalid("book_id is invalid"))
	}
	borrowerParam := c.QueryParam("borrower_id")
	if borrowerParam == "" {
		borrowerParam = c.FormValue("borrower_id")
	}
	if borrowerParam == "" {
		return httpError(invalid("borrower_id is required"))
	}
	borrowerID, err := strconv.Atoi(borrowerParam)
	if err != nil {
		return httpError(invalid("borrower_id is invalid"))
	}

	loan, err := h.librarySvc.BorrowBook(c.Request().Context(), bookID, borrowerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

// CreateBorrower godoc
// @Summary      Create a borrower
// @Tags         borrowers
// @Accept       json
// @Produce      json
// @Param        borrower  body      model.CreateBorrowerRequest  true  "Borrower"
// @Success      201       {object}  model.Borrower
// @Failure      400       {object}  echo.HTTPError
// @Failure      500       {object}  echo.HTTPError
// @Router       /borrowers [post]
func (h *Handler) CreateBorrower(c echo.Context) error {
	var req model.CreateBorrowerRequest
	if err := c.Bind(&req); err != nil {
		return httpError(invalid(err.Error()))
	}
	if err := c.Validate(req); err != nil {
		return httpError(invalid(err.Error()))
	}
	borrower, err := h.librarySvc.CreateBorrower(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, borrower)
}

// GetBorrower godoc
// @Summary      Get a borrower
// @Tags         borrowers
// @Produce      json
// @Param        borrower_id  path      int  true  "Borrower ID"
// @Success      200          {object}  model.Borrower
// @Failure      400          {object}  echo.HTTPError
// @Failure      404          {object}  echo.HTTPError
// @Router       /borrowers/{borrower_id} [get]
func (h *Handler) GetBorrower(c echo.Context) error {
	borrowerID, err := strconv.Atoi(c.Param("borrower_id"))
	if err != nil {
		return httpError(invalid("borrower_id is invalid"))
	}
	borrower, err := h.librarySvc.GetBorrower(c.Request().Context(), borrowerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, borrower)
}

// GetBorrowedBooks godoc
// @Summary      List loans of a borrower
// @Tags         borrowers
// @Produce      json
// @Param        borrower_id  path      int  true  "Borrower ID"
// @Success      200          {array}   model.Loan
// @Failure      400          {object}  echo.HTTPError
// @Failure      404          {object}  echo.HTTPError
// @Router       /borrowers/{borrower_id}/books [get]
func (h *Handler) GetBorrowedBooks(c echo.Context) error {
	borrowerID, err := strconv.Atoi(c.Param("borrower_id"))
	if err != nil {
		return httpError(invalid("borrower_id is invalid"))
	}
	loans, err := h.librarySvc.ListBorrowerLoans(c.Request().Context(), borrowerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

// GetLoan godoc
// @Summary      Get a loan
// @Tags         loans
// @Produce      json
// @Param        loan_id  path      int  true  "Loan ID"
// @Success      200      {object}  model.Loan
// @Failure      400      {object}  echo.HTTPError
// @Failure      404      {object}  echo.HTTPError
// @Router       /loans/{loan_id} [get]
func (h *Handler) GetLoan(c echo.Context) error {
	loanID, err := strconv.Atoi(c.Param("loan_id"))
	if err != nil {
		return httpError(invalid("loan_id is invalid"))
	}
	loan, err := h.librarySvc.GetLoan(c.Request().Context(), loanID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

func invalid(msg string) error {
	return errs.New(errs.KindValidation, msg)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
