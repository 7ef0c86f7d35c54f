package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cariya/internal/amqp"
	"cariya/internal/core"
	applog "cariya/internal/log"
	"cariya/internal/services"
)

type (
	registerResponse struct {
		Message     string `json:"message"`
		GeneratedID string `json:"generated_id"`
	}

	loginResponse struct {
		Message string `json:"message"`
		UserID  string `json:"user_id"`
		Token   string `json:"token"`
	}

	savingsResponse struct {
		Message         string     `json:"message"`
		Month           int        `json:"month"`
		MonthKey        string     `json:"month_key"`
		MonthlySavings  core.Money `json:"monthly_savings"`
		ExpectedSavings core.Money `json:"expected_savings"`
		MilestoneScore  int        `json:"milestone_score"`
		ComplianceScore int        `json:"compliance_score"`
		MaxCompliance   int        `json:"max_compliance"`
	}

	activityResponse struct {
		Message         string `json:"message"`
		Month           int    `json:"month"`
		MonthKey        string `json:"month_key"`
		ActivityPoints  int    `json:"activity_points"`
		ComplianceScore int    `json:"compliance_score"`
		MaxCompliance   int    `json:"max_compliance"`
	}

	scheduledResponse struct {
		Message string `json:"message"`
		RunID   string `json:"run_id"`
		Month   *int   `json:"month,omitempty"`
	}
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.users == nil || s.engine == nil {
		checks["services"] = "failed: not configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["services"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not_checked"
	}

	if s.scheduler != nil {
		checks["scheduler"] = "ok"
	} else {
		checks["scheduler"] = "not_configured"
	}

	limits := s.rateLimiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": limits.ClientCount,
		"rejected":       limits.Rejected,
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.trace.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	limitMetrics := s.rateLimiter.GetMetrics()

	w.WriteHeader(http.StatusOK)
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	counter("registrations_total", "Users registered", atomic.LoadInt64(&s.appMetrics.registrations))
	counter("savings_recorded_total", "Savings contributions recorded", atomic.LoadInt64(&s.appMetrics.savings))
	counter("activities_recorded_total", "Monthly activities recorded", atomic.LoadInt64(&s.appMetrics.activities))
	counter("processing_runs_total", "Month-end runs started over HTTP", atomic.LoadInt64(&s.appMetrics.runs))
	counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", limitMetrics.Rejected)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	numChildren, ok, err := p.Int("num_children")
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	if !ok {
		BadRequestError("num_children is required").Write(w)
		return
	}

	user, err := s.users.Register(ctx, services.RegisterRequest{
		FirstName:   p.Get("first_name"),
		Surname:     p.Get("surname"),
		Phone:       p.Get("mobile_number"),
		NumChildren: numChildren,
		ChildAges:   p.Get("ages_of_children_per_birth_order"),
	})
	if err != nil {
		logger.WarnContext(ctx, "Registration rejected", applog.FieldOperation, applog.OpRegister, applog.FieldError, err)
		ErrorFrom(ctx, err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.registrations, 1)
	s.reports.Invalidate(ctx)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/users/"+user.ID).
		Data(registerResponse{Message: "User registered successfully", GeneratedID: user.ID}).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	res, err := s.users.Login(ctx, p.Get("mobile_number"))
	if err != nil {
		if StatusFor(err) == http.StatusNotFound {
			// Unknown numbers are reported like bad credentials.
			ErrorResponse(http.StatusUnauthorized, "invalid mobile number").Write(w)
			return
		}
		ErrorFrom(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(loginResponse{Message: "Login successful", UserID: res.UserID, Token: res.Token}).Write(w)
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.users.Summary(ctx, r.PathValue("id"))
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(summary).Write(w)
}

func (s *Server) handleRecordSavings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	amount, err := p.Money("amount")
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	month, ok, err := p.Int("month")
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	if !ok {
		month = s.engine.CurrentMonth()
	}

	res, err := s.users.RecordSavings(ctx, userID, month, amount)
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.savings, 1)
	s.events.LogLedgerWrite(ctx, applog.OpSavings, userID, res.Entry.MonthKey, res.ComplianceScore)
	s.reports.Invalidate(ctx)
	NewJSONResponse().Data(savingsResponse{
		Message:         "Savings added for month " + res.Entry.MonthKey,
		Month:           res.Month,
		MonthKey:        res.Entry.MonthKey,
		MonthlySavings:  res.Entry.Savings,
		ExpectedSavings: res.Expected,
		MilestoneScore:  res.Entry.Milestone,
		ComplianceScore: res.ComplianceScore,
		MaxCompliance:   2 * s.engine.CurrentMonth(),
	}).Write(w)
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	month, ok, err := p.Int("month")
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	if !ok {
		month = s.engine.CurrentMonth()
	}

	res, err := s.users.RecordActivity(ctx, userID, month, p.Get("activity"), p.Get("partner"))
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.activities, 1)
	s.events.LogLedgerWrite(ctx, applog.OpActivity, userID, res.Entry.MonthKey, res.ComplianceScore)
	s.reports.Invalidate(ctx)
	NewJSONResponse().Data(activityResponse{
		Message:         "Activity added for month " + res.Entry.MonthKey,
		Month:           res.Month,
		MonthKey:        res.Entry.MonthKey,
		ActivityPoints:  res.ActivityPoints,
		ComplianceScore: res.ComplianceScore,
		MaxCompliance:   2 * s.engine.CurrentMonth(),
	}).Write(w)
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.users.Compliance(ctx, r.PathValue("id"))
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

// handleCalculateScores runs month-end processing inline, or queues it for
// the worker when async is set.
func (s *Server) handleCalculateScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	query := r.URL.Query()

	month, err := parseMonthQuery(query)
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}

	if queryFlag(query, "async") {
		if s.scheduler == nil {
			ErrorResponse(http.StatusServiceUnavailable, "asynchronous processing is not configured").Write(w)
			return
		}
		runID := uuid.NewString()
		if err := s.scheduler.PublishScoreMonth(ctx, amqp.NewScoreMonthMessage(runID, month)); err != nil {
			logger.ErrorContext(ctx, "Failed to queue processing run",
				applog.FieldOperation, applog.OpProcess,
				applog.FieldRunID, runID,
				applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "could not queue processing run").Write(w)
			return
		}
		atomic.AddInt64(&s.appMetrics.runs, 1)
		NewJSONResponse().
			Status(http.StatusAccepted).
			Data(scheduledResponse{Message: "Processing run queued", RunID: runID, Month: month}).
			Write(w)
		return
	}

	sum, err := s.batch.ProcessMonth(ctx, month)
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.runs, 1)
	s.events.LogMonthProcessed(ctx, sum.RunID, sum.MonthKey, sum.Processed, len(sum.Failures))
	s.reports.Invalidate(ctx)
	NewJSONResponse().Data(sum).Write(w)
}

func (s *Server) handleDonorView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := s.reports.DonorView(ctx)
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	if len(view.Rows) == 0 {
		NewJSONResponse().Data(map[string]string{"message": "No users found"}).Write(w)
		return
	}
	NewJSONResponse().Data(view).Write(w)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.reports.Segments(ctx, s.engine.CurrentMonth())
	if err != nil {
		ErrorFrom(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}
