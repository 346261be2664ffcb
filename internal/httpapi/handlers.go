package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/m3rciful/mebelbot/core/logger"
	"github.com/m3rciful/mebelbot/internal/apperr"
	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/pricing"
)

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email,max=200"`
	Message string `json:"message" validate:"max=4000"`
}

type calculatorRequest struct {
	contactRequest
	Configuration pricing.Configuration `json:"configuration"`
}

type createdResponse struct {
	ID       string            `json:"id"`
	Estimate *pricing.Estimate `json:"estimate,omitempty"`
}

// createApplication handles the website contact form.
// POST /api/applications
func (s *Server) createApplication(c *gin.Context) {
	var req contactRequest
	if !s.bind(c, &req) {
		return
	}
	l, err := s.create(c.Request.Context(), req, leads.SourceWebsiteForm, req.Message)
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: l.ID})
}

// createCalculation stores a calculator request together with its estimate.
// POST /api/calculator
func (s *Server) createCalculation(c *gin.Context) {
	var req calculatorRequest
	if !s.bind(c, &req) {
		return
	}
	est, err := s.pricing.Estimate(req.Configuration)
	if handleError(c, err) {
		return
	}
	msg := describeConfiguration(req.Configuration, est)
	if m := strings.TrimSpace(req.Message); m != "" {
		msg += "\n" + m
	}
	l, err := s.create(c.Request.Context(), req.contactRequest, leads.SourceCalculator, msg)
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: l.ID, Estimate: &est})
}

// estimate prices a configuration without creating a lead.
// POST /api/estimate
func (s *Server) estimate(c *gin.Context) {
	var cfg pricing.Configuration
	if !s.bind(c, &cfg) {
		return
	}
	est, err := s.pricing.Estimate(cfg)
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, est)
}

func (s *Server) create(ctx context.Context, req contactRequest, src leads.Source, message string) (leads.Lead, error) {
	in := leads.NewLead{
		Name:     req.Name,
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.TrimSpace(req.Email),
		Message:  strings.TrimSpace(message),
		Source:   src,
		Priority: leads.PriorityNormal,
	}
	if in.Phone != "" {
		in.Phone = s.phone.E164(in.Phone)
	}
	l, err := s.store.Create(ctx, in)
	if err != nil {
		return leads.Lead{}, err
	}
	if s.notify != nil {
		detached := context.WithoutCancel(logger.WithLeadID(ctx, l.ID))
		s.goFn(func() { s.notify(detached, l) })
	}
	return l, nil
}

func describeConfiguration(cfg pricing.Configuration, est pricing.Estimate) string {
	parts := []string{
		cfg.Kind,
		strconv.FormatFloat(cfg.LengthMetres, 'f', -1, 64) + " м",
		cfg.Material,
	}
	if cfg.Facade != "" {
		parts = append(parts, cfg.Facade)
	}
	if cfg.Hardware != "" {
		parts = append(parts, cfg.Hardware)
	}
	if cfg.Installation {
		parts = append(parts, "монтаж")
	}
	return fmt.Sprintf("Калькулятор: %s. Оценка: %d ₽", strings.Join(parts, ", "), est.Price)
}

type loginRequest struct {
	Password string `json:"password" validate:"required,max=200"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// login exchanges the admin password for a token.
// POST /admin/login
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bind(c, &req) {
		return
	}
	if err := bcrypt.CompareHashAndPassword(s.auth.hash, []byte(req.Password)); err != nil {
		logger.Warn(c.Request.Context(), "http", "auth.login_failed", slog.String("ip", c.ClientIP()))
		abortUnauthorized(c, "invalid credentials")
		return
	}
	token, exp, err := s.auth.issue()
	if err != nil {
		handleError(c, apperr.Internal("httpapi.login", err))
		return
	}
	logger.Info(c.Request.Context(), "http", "auth.login", slog.String("ip", c.ClientIP()))
	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
}

// listApplications returns leads newest first.
// GET /admin/applications?status=&priority=
func (s *Server) listApplications(c *gin.Context) {
	var f leads.Filter
	if raw := c.Query("status"); raw != "" {
		st, err := leads.ParseStatus(raw)
		if err != nil {
			badRequest(c, "invalid status", nil)
			return
		}
		f.Status = st
	}
	if raw := c.Query("priority"); raw != "" {
		p := leads.Priority(raw)
		if !p.Valid() {
			badRequest(c, "invalid priority", nil)
			return
		}
		f.Priority = p
	}
	list, err := s.store.List(c.Request.Context(), f)
	if handleError(c, err) {
		return
	}
	if list == nil {
		list = []leads.Lead{}
	}
	c.JSON(http.StatusOK, list)
}

// getApplication returns one lead.
// GET /admin/applications/:id
func (s *Server) getApplication(c *gin.Context) {
	l, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, l)
}

type statusRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=1000"`
}

// updateStatus moves a lead to another status.
// PATCH /admin/applications/:id
func (s *Server) updateStatus(c *gin.Context) {
	var req statusRequest
	if !s.bind(c, &req) {
		return
	}
	l, err := s.store.UpdateStatus(c.Request.Context(), c.Param("id"), leads.Status(strings.TrimSpace(req.Status)), Actor, req.Comment)
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, l)
}

type noteRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// addNote appends an operator note.
// POST /admin/applications/:id/notes
func (s *Server) addNote(c *gin.Context) {
	var req noteRequest
	if !s.bind(c, &req) {
		return
	}
	l, err := s.store.AppendNote(c.Request.Context(), c.Param("id"), req.Text, Actor)
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, l)
}

// deleteApplication removes a lead.
// DELETE /admin/applications/:id
func (s *Server) deleteApplication(c *gin.Context) {
	if handleError(c, s.store.Delete(c.Request.Context(), c.Param("id"))) {
		return
	}
	c.Status(http.StatusNoContent)
}

// stats counts leads per status.
// GET /admin/stats
func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, st)
}
