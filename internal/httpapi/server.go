// Package httpapi serves the website contact form, the price calculator and
// the admin panel API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/internal/apperr"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/phone"
	"github.com/m3rciful/mebelbot/internal/pricing"
)

// Actor is recorded on audit entries written through the admin API.
const Actor = "admin"

// LeadStore is the part of leads.Store the API uses.
type LeadStore interface {
	Create(ctx context.Context, in leads.NewLead) (leads.Lead, error)
	Get(ctx context.Context, id string) (leads.Lead, error)
	List(ctx context.Context, f leads.Filter) ([]leads.Lead, error)
	UpdateStatus(ctx context.Context, id string, status leads.Status, actor, comment string) (leads.Lead, error)
	AppendNote(ctx context.Context, id, text, by string) (leads.Lead, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (leads.Stats, error)
}

// NotifyFunc announces a new lead. It runs detached from the request.
type NotifyFunc func(ctx context.Context, l leads.Lead)

// AdminOptions enable the /admin routes. An empty PasswordHash leaves them unmounted.
type AdminOptions struct {
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

// Options configure a Server.
type Options struct {
	Store               LeadStore
	Notify              NotifyFunc
	Pricing             pricing.Table
	Phone               phone.Normalizer
	Admin               AdminOptions
	CORSOrigins         []string
	PublicRatePerMinute int
	// Go runs fn in the background; defaults to a plain goroutine.
	Go func(fn func())
	// Now is the clock for admin tokens.
	Now func() time.Time
}

// Server holds the gin engine and its collaborators.
type Server struct {
	store   LeadStore
	notify  NotifyFunc
	pricing pricing.Table
	phone   phone.Normalizer
	val     *validator.Validate
	auth    *authenticator
	goFn    func(func())
	engine  *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		notify:  opts.Notify,
		pricing: opts.Pricing,
		phone:   opts.Phone,
		val:     newValidator(),
		goFn:    opts.Go,
	}
	if s.goFn == nil {
		s.goFn = func(fn func()) { go fn() }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Admin.PasswordHash != "" {
		ttl := opts.Admin.TokenTTL
		if ttl <= 0 {
			ttl = 12 * time.Hour
		}
		s.auth = &authenticator{
			hash:   []byte(opts.Admin.PasswordHash),
			secret: []byte(opts.Admin.JWTSecret),
			ttl:    ttl,
			now:    now,
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestContext(), requestLogger(), corsMiddleware(opts.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	public := r.Group("/api", newIPRateLimiter(opts.PublicRatePerMinute).middleware())
	public.POST("/applications", s.createApplication)
	public.POST("/calculator", s.createCalculation)
	public.POST("/estimate", s.estimate)

	if s.auth != nil {
		r.POST("/admin/login", newIPRateLimiter(5).middleware(), s.login)
		admin := r.Group("/admin", s.authRequired())
		admin.GET("/applications", s.listApplications)
		admin.GET("/applications/:id", s.getApplication)
		admin.PATCH("/applications/:id", s.updateStatus)
		admin.POST("/applications/:id/notes", s.addNote)
		admin.DELETE("/applications/:id", s.deleteApplication)
		admin.GET("/stats", s.stats)
	} else {
		logger.HTTP.Warn("admin api disabled", slog.String("event", "http.admin_disabled"))
	}

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("http listening", slog.String("event", "http.start"), slog.String("listen", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logger.HTTP.Info("http stopped", slog.String("event", "http.stop"), slog.String("err", logger.Err(err)))
	return err
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// handleError writes err with the status of its kind. Internal details never
// reach the client.
func handleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	status := http.StatusInternalServerError
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status = ae.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "http", "request.failed",
			slog.String("route", c.FullPath()),
			slog.String("err", logger.Err(err)),
		)
	}
	c.JSON(status, errorBody{Error: apperr.PublicMessage(err)})
	return true
}

func badRequest(c *gin.Context, msg string, details any) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg, Details: details})
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// bind decodes the JSON body into req and validates it.
func (s *Server) bind(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		err = s.val.Struct(req)
	}
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		badRequest(c, msgValidationFailed, fieldErrors(verrs))
		return false
	}
	badRequest(c, msgInvalidRequest, nil)
	return false
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
