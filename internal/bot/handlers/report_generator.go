package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const DefaultFontPath = "fonts/DejaVuSans.ttf"

var ErrFontMissing = errors.New("pdf font not found")

type ReportGenerator struct {
	fontPath string
	now      func() time.Time
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	if fontPath == "" {
		fontPath = DefaultFontPath
	}
	return &ReportGenerator{fontPath: fontPath, now: time.Now}
}

// GeneratePDFReport renders one month: totals, a turnover chart and every
// record of the month.
func (rg *ReportGenerator) GeneratePDFReport(view service.MonthView, rate decimal.Decimal) ([]byte, error) {
	if _, err := os.Stat(rg.fontPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFontMissing, rg.fontPath)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8Font("DejaVuSans", "", rg.fontPath)
	pdf.AddUTF8Font("DejaVuSans", "B", rg.fontPath)
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("DejaVuSans", "B", 20)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(190, 10, "Отчёт за "+monthLabel(view.Year, view.Month), "", 1, "C", false, 0, "")
	pdf.SetFont("DejaVuSans", "", 12)
	pdf.CellFormat(190, 8, "Сформировано: "+rg.now().Format("02.01.2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	paid := decimal.Zero
	for _, r := range view.Records {
		if r.IsSalary() {
			paid = paid.Add(r.Amount)
		}
	}

	pdf.SetFont("DejaVuSans", "B", 16)
	pdf.CellFormat(190, 10, "Итоги", "", 1, "L", false, 0, "")
	pdf.SetFont("DejaVuSans", "", 12)
	for _, line := range []string{
		"Оборот: " + money(view.Total),
		fmt.Sprintf("ЗП %s%%: %s", rate.Shift(2).String(), money(view.Total.Mul(rate))),
		"Выплачено: " + money(paid),
		fmt.Sprintf("Дней с записями: %d", len(view.Days)),
	} {
		pdf.CellFormat(190, 8, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	if len(view.Days) >= 2 {
		y := pdf.GetY()
		if img, err := rg.generateLineChart(view.Days); err == nil {
			rg.addImageToPDF(pdf, "cumulative", img, "Оборот нарастающим итогом", 10, y+6, 90, 50)
		} else {
			logger.Warn("Line chart failed", "period", view.Period, "error", err)
		}
		if img, err := rg.generateBarChart(view.Days); err == nil {
			rg.addImageToPDF(pdf, "daily", img, "Оборот по дням", 110, y+6, 90, 50)
		} else {
			logger.Warn("Bar chart failed", "period", view.Period, "error", err)
		}
		pdf.SetY(y + 62)
	}

	pdf.SetFont("DejaVuSans", "B", 14)
	pdf.CellFormat(190, 10, "Записи", "", 1, "L", false, 0, "")
	pdf.SetFont("DejaVuSans", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"Дата", "Имя", "Сумма", "ЗП"} {
		pdf.CellFormat([]float64{30, 90, 35, 35}[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("DejaVuSans", "", 11)
	if len(view.Records) == 0 {
		pdf.CellFormat(190, 7, "Нет записей", "1", 1, "C", false, 0, "")
	}
	for _, r := range view.Records {
		amountCell, salaryCell := "", ""
		if r.IsSalary() {
			salaryCell = ledger.FormatAmount(r.Amount)
		} else {
			amountCell = ledger.FormatAmount(r.Amount)
		}
		pdf.CellFormat(30, 7, r.DateString(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 7, r.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, amountCell, "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, salaryCell, "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateCSV exports the month in sheet column order with dot decimals.
func (rg *ReportGenerator) GenerateCSV(view service.MonthView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "label", "amount", "salary"}); err != nil {
		return nil, err
	}
	for _, r := range view.Records {
		row := []string{r.DateString(), r.Label, "", ""}
		if r.IsSalary() {
			row[3] = r.Amount.String()
		} else {
			row[2] = r.Amount.String()
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func (rg *ReportGenerator) generateLineChart(days []service.DayTotal) ([]byte, error) {
	xs := make([]time.Time, len(days))
	ys := make([]float64, len(days))
	cum := decimal.Zero
	for i, d := range days {
		cum = cum.Add(d.Total)
		xs[i] = d.Date
		ys[i] = cum.InexactFloat64()
	}

	graph := chart.Chart{
		Width:  600,
		Height: 300,
		XAxis: chart.XAxis{
			Style:          chart.Style{FontSize: 8},
			ValueFormatter: chart.TimeValueFormatterWithFormat("02.01"),
		},
		YAxis: chart.YAxis{Style: chart.Style{FontSize: 8}},
		Series: []chart.Series{
			chart.TimeSeries{
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("5A9BD5"),
					StrokeWidth: 2,
				},
			},
		},
	}
	var buf bytes.Buffer
	err := graph.Render(chart.PNG, &buf)
	return buf.Bytes(), err
}

func (rg *ReportGenerator) generateBarChart(days []service.DayTotal) ([]byte, error) {
	bars := make([]chart.Value, len(days))
	for i, d := range days {
		bars[i] = chart.Value{
			Label: d.Date.Format("02"),
			Value: d.Total.InexactFloat64(),
			Style: chart.Style{FillColor: drawing.ColorFromHex("ED7D31"), StrokeColor: drawing.ColorFromHex("ED7D31")},
		}
	}
	graph := chart.BarChart{
		Width:    600,
		Height:   300,
		BarWidth: 12,
		XAxis:    chart.Style{FontSize: 7},
		YAxis:    chart.YAxis{Style: chart.Style{FontSize: 8}},
		Bars:     bars,
	}
	var buf bytes.Buffer
	err := graph.Render(chart.PNG, &buf)
	return buf.Bytes(), err
}

func (rg *ReportGenerator) addImageToPDF(pdf *gofpdf.Fpdf, name string, img []byte, title string, x, y, w, h float64) {
	if title != "" {
		pdf.SetFont("DejaVuSans", "B", 11)
		pdf.SetXY(x, y-6)
		pdf.CellFormat(w, 6, title, "", 0, "C", false, 0, "")
	}
	options := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(img))
	pdf.ImageOptions(name, x, y, w, h, false, options, 0, "")
}

func (b *Bot) sendPDF(chatID int64, period string) {
	view, err := b.svc.Month(period)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	data, err := b.reportGen.GeneratePDFReport(view, b.svc.Rate())
	if err != nil {
		logger.LogError(chatID, "PDF report failed", err)
		b.sendError(chatID, err)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "report_" + period + ".pdf", Bytes: data})
	doc.Caption = "📄 " + monthLabel(view.Year, view.Month)
	b.send(chatID, doc)
}

func (b *Bot) sendCSV(chatID int64, period string) {
	view, err := b.svc.Month(period)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	data, err := b.reportGen.GenerateCSV(view)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "records_" + period + ".csv", Bytes: data})
	doc.Caption = "📑 " + monthLabel(view.Year, view.Month)
	b.send(chatID, doc)
}
