package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type StatsAPI struct {
	repo *repository.SQLiteRepository
	svc  *service.FinanceService
	now  func() time.Time
}

func NewStatsAPI(repo *repository.SQLiteRepository, svc *service.FinanceService) *StatsAPI {
	return &StatsAPI{repo: repo, svc: svc, now: time.Now}
}

type StatsResponse struct {
	TotalChats     int            `json:"total_chats"`
	ActiveToday    int            `json:"active_today"`
	ActiveWeek     int            `json:"active_week"`
	ActiveMonth    int            `json:"active_month"`
	ButtonClicks   map[string]int `json:"button_clicks"`
	AllChats       []ChatStats    `json:"all_chats"`
	StoreAvailable bool           `json:"store_available"`
	Periods        []PeriodStats  `json:"periods"`
}

type ChatStats struct {
	ChatID           int64     `json:"chat_id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	RemindersEnabled bool      `json:"reminders_enabled"`
	LastActive       time.Time `json:"last_active"`
	JoinDate         time.Time `json:"join_date"`
}

type PeriodStats struct {
	Period   string  `json:"period"`
	Turnover float64 `json:"turnover"`
	Salary   float64 `json:"salary"`
	Records  int     `json:"records"`
}

var buttonNames = map[string]string{
	"main":     "🏠 Главное",
	"back":     "⬅️ Назад",
	"year":     "📅 Год",
	"mon":      "📆 Месяц",
	"tgl":      "🔁 Половина месяца",
	"day":      "📆 День",
	"add":      "➕ Запись на день",
	"addrec":   "➕ Запись",
	"addsal":   "💵 Зарплата",
	"today":    "Сегодня",
	"gotoday":  "📆 Сегодня",
	"drow":     "❌ Удалить",
	"edit":     "✏️ Изменить",
	"undo":     "↺ Отменить",
	"undoedit": "↺ Отменить изменение",
	"profit":   "💰 ЗП",
	"hist":     "📜 История ЗП",
	"kpi":      "📊 KPI",
	"fcst":     "📈 Прогноз",
	"pdf":      "📄 PDF",
	"csv":      "📑 CSV",
	"rem":      "🔔 Напоминания",
}

func translateButtonName(verb string) string {
	if name, ok := buttonNames[verb]; ok {
		return name
	}
	return verb
}

// Router serves the stats endpoints.
func (s *StatsAPI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Get("/healthz", s.Health)
	r.Get("/api/stats", s.GetStats)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).String())
	})
}

func (s *StatsAPI) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"store_available": s.svc.Available(),
	})
}

func (s *StatsAPI) GetStats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.repo.GetAllChats()
	if err != nil {
		logger.Error("Stats: get chats failed", "error", err)
		http.Error(w, "cannot load chats", http.StatusInternalServerError)
		return
	}

	now := s.now()
	stats := StatsResponse{
		TotalChats:     len(chats),
		ButtonClicks:   map[string]int{},
		AllChats:       make([]ChatStats, 0, len(chats)),
		StoreAvailable: s.svc.Available(),
		Periods:        []PeriodStats{},
	}

	if n, err := s.repo.GetActiveChatsCount(now.Add(-24 * time.Hour)); err == nil {
		stats.ActiveToday = n
	}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	if n, err := s.repo.GetActiveChatsCount(weekAgo); err == nil {
		stats.ActiveWeek = n
	}
	if n, err := s.repo.GetActiveChatsCount(now.Add(-30 * 24 * time.Hour)); err == nil {
		stats.ActiveMonth = n
	}

	if clicks, err := s.repo.GetButtonClicksCount(weekAgo); err == nil {
		for verb, n := range clicks {
			stats.ButtonClicks[translateButtonName(verb)] += n
		}
	}

	for _, c := range chats {
		stats.AllChats = append(stats.AllChats, ChatStats{
			ChatID:           c.ChatID,
			Username:         c.Username,
			FirstName:        c.FirstName,
			RemindersEnabled: c.RemindersEnabled,
			LastActive:       c.LastActive,
			JoinDate:         c.CreatedAt,
		})
	}

	for _, t := range s.svc.Totals() {
		stats.Periods = append(stats.Periods, PeriodStats{
			Period:   t.Period,
			Turnover: t.Turnover.InexactFloat64(),
			Salary:   t.Salary.InexactFloat64(),
			Records:  t.Records,
		})
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Encode JSON response failed", "error", err)
	}
}
