package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/bot/handlers"
	"github.com/IlyaMakar/cashbook_bot/internal/config"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type dashboard struct {
	botAPIURL string
	client    *http.Client
	tmpl      *template.Template
}

type clickRow struct {
	Button string
	Count  int
}

type pageData struct {
	Stats     *handlers.StatsResponse
	Clicks    []clickRow
	Error     string
	FetchedAt time.Time
}

func main() {
	cfg := config.LoadAdmin()
	if err := logger.Init("info", false); err != nil {
		log.Fatalf("failed to initialize logger: %s", err.Error())
	}
	defer logger.Close()

	d := &dashboard{
		botAPIURL: cfg.BotAPIURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		tmpl:      template.Must(template.New("dashboard").Funcs(templateFuncs).Parse(dashboardHTML)),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Get("/", d.dashboardHandler)
	r.Get("/api/stats", d.apiStatsHandler)
	r.Get("/api/chats", d.apiChatsHandler)

	logger.Info("Admin panel starting", "port", cfg.Port, "bot_api", cfg.BotAPIURL)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("Admin panel stopped", "error", err)
	}
}

func (d *dashboard) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	data := pageData{FetchedAt: time.Now()}
	stats, err := d.fetchStats(r.Context())
	if err != nil {
		data.Error = err.Error()
	} else {
		data.Stats = stats
		for name, n := range stats.ButtonClicks {
			data.Clicks = append(data.Clicks, clickRow{Button: name, Count: n})
		}
		sort.Slice(data.Clicks, func(i, j int) bool {
			if data.Clicks[i].Count != data.Clicks[j].Count {
				return data.Clicks[i].Count > data.Clicks[j].Count
			}
			return data.Clicks[i].Button < data.Clicks[j].Button
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		logger.Error("Render dashboard failed", "error", err)
	}
}

func (d *dashboard) apiStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := d.fetchStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, stats)
}

func (d *dashboard) apiChatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := d.fetchStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, stats.AllChats)
}

func (d *dashboard) fetchStats(ctx context.Context) (*handlers.StatsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.botAPIURL+"/api/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		logger.Warn("Bot API unreachable", "url", d.botAPIURL, "error", err)
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch stats: status %d", resp.StatusCode)
	}

	var stats handlers.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	logger.Debug("Stats fetched", "chats", stats.TotalChats, "periods", len(stats.Periods))
	return &stats, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Encode JSON response failed", "error", err)
	}
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "—"
		}
		return t.Format("02.01.2006 15:04")
	},
	"money": func(f float64) string { return fmt.Sprintf("%.2f $", f) },
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Cashbook Bot Admin</title>
    <style>
        :root {
            --primary: #6366f1;
            --secondary: #10b981;
            --danger: #ef4444;
            --dark: #1f2937;
            --gray: #6b7280;
            --gray-light: #e5e7eb;
            --border-radius: 12px;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: 'Inter', 'Segoe UI', system-ui, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            color: var(--dark);
            line-height: 1.6;
        }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        h1 { color: #fff; margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 16px; margin-bottom: 20px; }
        .card { background: #fff; border-radius: var(--border-radius); padding: 20px; }
        .card h2 { font-size: 1rem; color: var(--gray); margin-bottom: 8px; }
        .value { font-size: 2rem; font-weight: 700; color: var(--primary); }
        .ok { color: var(--secondary); }
        .bad { color: var(--danger); }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid var(--gray-light); }
        .section { margin-bottom: 20px; }
        .muted { color: #fff; opacity: .8; font-size: .9rem; }
    </style>
</head>
<body>
<div class="container">
    <h1>Cashbook Bot</h1>
    {{if .Error}}
    <div class="card"><h2>Ошибка</h2><p class="bad">{{.Error}}</p></div>
    {{else}}
    <div class="grid">
        <div class="card"><h2>Всего чатов</h2><div class="value">{{.Stats.TotalChats}}</div></div>
        <div class="card"><h2>Активны за день</h2><div class="value">{{.Stats.ActiveToday}}</div></div>
        <div class="card"><h2>Активны за неделю</h2><div class="value">{{.Stats.ActiveWeek}}</div></div>
        <div class="card"><h2>Активны за месяц</h2><div class="value">{{.Stats.ActiveMonth}}</div></div>
        <div class="card"><h2>Таблица</h2>
            {{if .Stats.StoreAvailable}}<div class="value ok">доступна</div>{{else}}<div class="value bad">недоступна</div>{{end}}
        </div>
    </div>

    <div class="card section">
        <h2>Периоды</h2>
        <table>
            <tr><th>Период</th><th>Оборот</th><th>Выплачено</th><th>Записей</th></tr>
            {{range .Stats.Periods}}
            <tr><td>{{.Period}}</td><td>{{money .Turnover}}</td><td>{{money .Salary}}</td><td>{{.Records}}</td></tr>
            {{else}}
            <tr><td colspan="4">Нет данных</td></tr>
            {{end}}
        </table>
    </div>

    <div class="card section">
        <h2>Нажатия кнопок за неделю</h2>
        <table>
            <tr><th>Кнопка</th><th>Нажатий</th></tr>
            {{range .Clicks}}
            <tr><td>{{.Button}}</td><td>{{.Count}}</td></tr>
            {{else}}
            <tr><td colspan="2">Нет данных</td></tr>
            {{end}}
        </table>
    </div>

    <div class="card section">
        <h2>Чаты</h2>
        <table>
            <tr><th>Chat ID</th><th>Пользователь</th><th>Имя</th><th>Напоминания</th><th>Активность</th><th>Начало</th></tr>
            {{range .Stats.AllChats}}
            <tr>
                <td>{{.ChatID}}</td>
                <td>{{if .Username}}@{{.Username}}{{end}}</td>
                <td>{{.FirstName}}</td>
                <td>{{if .RemindersEnabled}}вкл{{else}}выкл{{end}}</td>
                <td>{{date .LastActive}}</td>
                <td>{{date .JoinDate}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}
    <p class="muted">Обновлено {{date .FetchedAt}}</p>
</div>
</body>
</html>
`
