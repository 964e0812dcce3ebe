package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/timesheet-app/timesheet/internal/analytics"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.E(domain.KindInvalidRequest, "malformed request body")
	}
	return nil
}

// dateRange reads from/to query parameters. Absent values default to the
// trailing 30 days on the user's local calendar.
func dateRange(r *http.Request, user *domain.User) (domain.Date, domain.Date, error) {
	today := user.LocalDate(time.Now())
	from, to := today.AddDays(-30), today.AddDays(1)

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = domain.ParseDate(v); err != nil {
			return domain.Date{}, domain.Date{}, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = domain.ParseDate(v); err != nil {
			return domain.Date{}, domain.Date{}, err
		}
	}
	if !from.Before(to) {
		return domain.Date{}, domain.Date{}, domain.E(domain.KindInvalidRequest, "from must be before to")
	}
	return from, to, nil
}

type sessionDTO struct {
	ID            string     `json:"id"`
	Activity      string     `json:"activity"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Direction     *string    `json:"direction,omitempty"`
	DurationHours float64    `json:"duration_hours"`
}

func toSessionDTO(s *domain.Session) sessionDTO {
	dto := sessionDTO{
		ID:        s.ID,
		Activity:  string(s.State),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
	if s.Direction != nil {
		d := string(*s.Direction)
		dto.Direction = &d
	}
	if !s.Active() {
		dto.DurationHours = s.Hours()
	}
	return dto
}

func toSessionDTOs(sessions []*domain.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	return out
}

// --- auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mnemonic string `json:"mnemonic"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.mnemonics.Login(r.Context(), req.Mnemonic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- tracking ---

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activity      string `json:"activity"`
		OffsetMinutes *int   `json:"offset_minutes,omitempty"`
		LocalClock    string `json:"local_clock,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	state := domain.ActivityState(req.Activity)
	spec := tracking.TimeSpec{OffsetMinutes: req.OffsetMinutes, LocalClock: req.LocalClock}
	result, err := s.tracking.Toggle(r.Context(), userFrom(r.Context()), state, spec)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		Started *sessionDTO `json:"started,omitempty"`
		Ended   *sessionDTO `json:"ended,omitempty"`
	}{}
	if result.Started != nil {
		dto := toSessionDTO(result.Started)
		resp.Started = &dto
	}
	if result.Ended != nil {
		dto := toSessionDTO(result.Ended)
		resp.Ended = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.tracking.CurrentStatus(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		Active           *sessionDTO `json:"active,omitempty"`
		DurationMinutes  int         `json:"duration_minutes"`
		WorkedTodayHours float64     `json:"worked_today_hours"`
		TargetWorkHours  *float64    `json:"target_work_hours,omitempty"`
	}{
		DurationMinutes:  int(st.Duration.Minutes()),
		WorkedTodayHours: st.WorkedToday.Hours(),
		TargetWorkHours:  st.TargetWorkHours,
	}
	if st.Active != nil {
		dto := toSessionDTO(st.Active)
		resp.Active = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- entries ---

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, r, domain.E(domain.KindInvalidRequest, "invalid limit %q", v))
			return
		}
		sessions, err := s.tracking.Recent(r.Context(), user, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
		return
	}

	var day domain.Date
	if v := r.URL.Query().Get("date"); v != "" {
		var err error
		if day, err = domain.ParseDate(v); err != nil {
			writeError(w, r, err)
			return
		}
	}
	sessions, err := s.tracking.ListDay(r.Context(), user, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

func (s *Server) handleAdjustEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field        string `json:"field"` // start | end
		DeltaMinutes int    `json:"delta_minutes"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	id := chi.URLParam(r, "id")
	delta := time.Duration(req.DeltaMinutes) * time.Minute

	var (
		sess *domain.Session
		err  error
	)
	switch req.Field {
	case "start":
		sess, err = s.tracking.AdjustStartTime(r.Context(), user, id, delta)
	case "end":
		sess, err = s.tracking.AdjustEndTime(r.Context(), user, id, delta)
	default:
		err = domain.E(domain.KindInvalidRequest, "field must be start or end")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	err := s.tracking.Delete(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- analytics ---

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.analytics.DailyBreakdown(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.analytics.AggregateStats(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	direction := domain.CommuteDirection(r.URL.Query().Get("direction"))
	if direction != domain.DirectionToWork && direction != domain.DirectionToHome {
		writeError(w, r, domain.E(domain.KindInvalidRequest, "direction must be to_work or to_home"))
		return
	}
	patterns, err := s.analytics.CommutePatterns(r.Context(), user, direction, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bucketing := analytics.Bucketing(r.URL.Query().Get("bucket"))
	if bucketing == "" {
		bucketing = analytics.BucketDay
	}
	buckets, err := s.analytics.ChartData(r.Context(), user, from, to, bucketing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.analytics.EvaluateCompliance(r.Context(), user, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- settings ---

type settingsDTO struct {
	UTCOffsetMinutes               *int     `json:"utc_offset_minutes,omitempty"`
	MaxWorkHours                   *float64 `json:"max_work_hours,omitempty"`
	MaxCommuteHours                *float64 `json:"max_commute_hours,omitempty"`
	MaxLunchHours                  *float64 `json:"max_lunch_hours,omitempty"`
	LunchReminderHour              *int     `json:"lunch_reminder_hour,omitempty"`
	LunchReminderMinute            *int     `json:"lunch_reminder_minute,omitempty"`
	TargetWorkHours                *float64 `json:"target_work_hours,omitempty"`
	TargetOfficeHours              *float64 `json:"target_office_hours,omitempty"`
	ForgotShutdownThresholdPercent *float64 `json:"forgot_shutdown_threshold_percent,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	offset := user.UTCOffsetMinutes
	writeJSON(w, http.StatusOK, settingsDTO{
		UTCOffsetMinutes:               &offset,
		MaxWorkHours:                   user.MaxWorkHours,
		MaxCommuteHours:                user.MaxCommuteHours,
		MaxLunchHours:                  user.MaxLunchHours,
		LunchReminderHour:              user.LunchReminderHour,
		LunchReminderMinute:            user.LunchReminderMinute,
		TargetWorkHours:                user.TargetWorkHours,
		TargetOfficeHours:              user.TargetOfficeHours,
		ForgotShutdownThresholdPercent: user.ForgotShutdownThresholdPercent,
	})
}

// handleUpdateSettings applies the fields present in the request; absent
// fields keep their stored values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	if req.UTCOffsetMinutes != nil {
		user.UTCOffsetMinutes = *req.UTCOffsetMinutes
	}
	if req.MaxWorkHours != nil {
		user.MaxWorkHours = req.MaxWorkHours
	}
	if req.MaxCommuteHours != nil {
		user.MaxCommuteHours = req.MaxCommuteHours
	}
	if req.MaxLunchHours != nil {
		user.MaxLunchHours = req.MaxLunchHours
	}
	if req.LunchReminderHour != nil {
		user.LunchReminderHour = req.LunchReminderHour
	}
	if req.LunchReminderMinute != nil {
		user.LunchReminderMinute = req.LunchReminderMinute
	}
	if req.TargetWorkHours != nil {
		user.TargetWorkHours = req.TargetWorkHours
	}
	if req.TargetOfficeHours != nil {
		user.TargetOfficeHours = req.TargetOfficeHours
	}
	if req.ForgotShutdownThresholdPercent != nil {
		user.ForgotShutdownThresholdPercent = req.ForgotShutdownThresholdPercent
	}

	if err := s.tracking.UpdateSettings(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetSettings(w, r)
}

// --- employer attendance ---

type employerRecordDTO struct {
	Date         domain.Date `json:"date"`
	ClockIn      *time.Time  `json:"clock_in,omitempty"`
	ClockOut     *time.Time  `json:"clock_out,omitempty"`
	WorkingHours float64     `json:"working_hours"`
	HasConflict  bool        `json:"has_conflict"`
}

func (s *Server) handleEmployerRecords(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.store.EmployerRecords(r.Context(), user.ID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]employerRecordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, employerRecordDTO{
			Date:         rec.Date,
			ClockIn:      rec.ClockIn,
			ClockOut:     rec.ClockOut,
			WorkingHours: rec.WorkingHours,
			HasConflict:  rec.HasConflict,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEmployerImport replaces the stored employer records in the given
// window. The replacement is atomic per import.
func (s *Server) handleEmployerImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From    domain.Date         `json:"from"`
		To      domain.Date         `json:"to"`
		Source  string              `json:"source"`
		Records []employerRecordDTO `json:"records"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.From.IsZero() || req.To.IsZero() || !req.From.Before(req.To) {
		writeError(w, r, domain.E(domain.KindInvalidRequest, "from must be before to"))
		return
	}

	user := userFrom(r.Context())
	records := make([]domain.EmployerAttendanceRecord, 0, len(req.Records))
	for _, rec := range req.Records {
		if rec.Date.Before(req.From) || !rec.Date.Before(req.To) {
			writeError(w, r, domain.E(domain.KindInvalidRequest, "record date %s outside import window", rec.Date))
			return
		}
		records = append(records, domain.EmployerAttendanceRecord{
			UserID:       user.ID,
			Date:         rec.Date,
			ClockIn:      rec.ClockIn,
			ClockOut:     rec.ClockOut,
			WorkingHours: rec.WorkingHours,
			HasConflict:  rec.HasConflict,
		})
	}

	if err := s.store.ReplaceEmployerRange(r.Context(), user.ID, req.From, req.To, records, req.Source); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(records)})
}

// --- compliance rules ---

type ruleDTO struct {
	RuleType       domain.ComplianceRuleType `json:"rule_type"`
	IsEnabled      bool                      `json:"is_enabled"`
	ThresholdHours float64                   `json:"threshold_hours"`
	ClockInDef     domain.AnchorDefinition   `json:"clock_in_def"`
	ClockOutDef    domain.AnchorDefinition   `json:"clock_out_def"`
	FixedClockIn   string                    `json:"fixed_clock_in,omitempty"`
	FixedClockOut  string                    `json:"fixed_clock_out,omitempty"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ComplianceRules(r.Context(), userFrom(r.Context()).ID, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ruleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleDTO{
			RuleType:       rule.RuleType,
			IsEnabled:      rule.IsEnabled,
			ThresholdHours: rule.ThresholdHours,
			ClockInDef:     rule.ClockInDef,
			ClockOutDef:    rule.ClockOutDef,
			FixedClockIn:   rule.FixedClockIn,
			FixedClockOut:  rule.FixedClockOut,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var req ruleDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch req.RuleType {
	case domain.RuleMinPresence, domain.RuleMinWork, domain.RuleCoreHours:
	default:
		writeError(w, r, domain.E(domain.KindInvalidRequest, "unknown rule type %q", req.RuleType))
		return
	}

	rule := &domain.ComplianceRule{
		ID:             uuid.New().String(),
		UserID:         userFrom(r.Context()).ID,
		RuleType:       req.RuleType,
		IsEnabled:      req.IsEnabled,
		ThresholdHours: req.ThresholdHours,
		ClockInDef:     req.ClockInDef,
		ClockOutDef:    req.ClockOutDef,
		FixedClockIn:   req.FixedClockIn,
		FixedClockOut:  req.FixedClockOut,
	}
	if err := s.store.UpsertComplianceRule(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleType := domain.ComplianceRuleType(chi.URLParam(r, "type"))
	if err := s.store.DeleteComplianceRule(r.Context(), userFrom(r.Context()).ID, ruleType); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- holidays ---

type holidayDTO struct {
	ID          string             `json:"id,omitempty"`
	StartDate   domain.Date        `json:"start_date"`
	EndDate     domain.Date        `json:"end_date"`
	Type        domain.HolidayType `json:"type"`
	Description string             `json:"description,omitempty"`
}

func (s *Server) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	from, to, err := dateRange(r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	holidays, err := s.store.Holidays(r.Context(), user.ID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]holidayDTO, 0, len(holidays))
	for _, h := range holidays {
		out = append(out, holidayDTO{
			ID:          h.ID,
			StartDate:   h.StartDate,
			EndDate:     h.EndDate,
			Type:        h.Type,
			Description: h.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req holidayDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.StartDate.Before(req.EndDate) {
		writeError(w, r, domain.E(domain.KindInvalidRequest, "start_date must be before end_date"))
		return
	}
	switch req.Type {
	case domain.HolidayVacation, domain.HolidaySick, domain.HolidayPublic:
	default:
		writeError(w, r, domain.E(domain.KindInvalidRequest, "unknown holiday type %q", req.Type))
		return
	}

	h := &domain.Holiday{
		ID:          uuid.New().String(),
		UserID:      userFrom(r.Context()).ID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Type:        req.Type,
		Description: req.Description,
	}
	if err := s.store.InsertHoliday(r.Context(), h); err != nil {
		writeError(w, r, err)
		return
	}
	req.ID = h.ID
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleDeleteHoliday(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteHoliday(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
