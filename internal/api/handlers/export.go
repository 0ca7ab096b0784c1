package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/pipeline"
)

// ExportHandler renders the latest audit run of a field as a downloadable
// statement. Exports always reflect a completed run; they never trigger one.
type ExportHandler struct {
	store  *ResultStore
	logger *logrus.Logger
}

// NewExportHandler creates an export handler over the shared snapshot store.
func NewExportHandler(store *ResultStore, logger *logrus.Logger) *ExportHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExportHandler{store: store, logger: logger}
}

// ExportXLSX handles GET /fields/:field/export/xlsx.
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	start := time.Now()
	result, ok := h.latest(c)
	if !ok {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		return
	}

	data, err := buildAuditXLSX(result)
	if err != nil {
		h.logger.WithError(err).WithField("field", result.FieldName).Error("XLSX export failed")
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build workbook"})
		return
	}

	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	filename := fmt.Sprintf("audit-%s-%s.xlsx", result.FieldName, result.Summary.AnalysisDate.Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ExportPDF handles GET /fields/:field/export/pdf.
func (h *ExportHandler) ExportPDF(c *gin.Context) {
	start := time.Now()
	result, ok := h.latest(c)
	if !ok {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		return
	}

	data, err := buildAuditPDF(result)
	if err != nil {
		h.logger.WithError(err).WithField("field", result.FieldName).Error("PDF export failed")
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build statement"})
		return
	}

	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	filename := fmt.Sprintf("audit-%s-%s.pdf", result.FieldName, result.Summary.AnalysisDate.Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *ExportHandler) latest(c *gin.Context) (*pipeline.Result, bool) {
	fieldName := c.Param("field")
	result, ok := h.store.Get(fieldName)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No audit run for field, POST /fields/" + fieldName + "/audit first",
		})
		return nil, false
	}
	return result, true
}

// displayFieldName renders a stored field key for statement headers.
func displayFieldName(fieldName string) string {
	return cases.Title(language.BritishEnglish).String(fieldName)
}

// buildAuditXLSX renders the full run: a summary sheet, the fiscal table
// and the governance flags.
func buildAuditXLSX(result *pipeline.Result) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	fiscalSheet := "fiscal"
	flagsSheet := "flags"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(fiscalSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(flagsSheet); err != nil {
		return nil, err
	}

	s := result.Summary
	_ = f.SetCellValue(summarySheet, "A1", "Production Decline Audit Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Field")
	_ = f.SetCellValue(summarySheet, "B3", displayFieldName(s.FieldName))
	_ = f.SetCellValue(summarySheet, "A4", "Run ID")
	_ = f.SetCellValue(summarySheet, "B4", result.RunID.String())
	_ = f.SetCellValue(summarySheet, "A5", "Analysis Date")
	_ = f.SetCellValue(summarySheet, "B5", s.AnalysisDate.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Price (GBP/BOE)")
	_ = f.SetCellValue(summarySheet, "B6", s.PricePerBarrel.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Threshold (%)")
	_ = f.SetCellValue(summarySheet, "B7", s.ThresholdPct)
	_ = f.SetCellValue(summarySheet, "A8", "Months Analysed")
	_ = f.SetCellValue(summarySheet, "B8", s.MonthsAnalysed)
	_ = f.SetCellValue(summarySheet, "A9", "Months Shut-in")
	_ = f.SetCellValue(summarySheet, "B9", s.MonthsShutIn)
	_ = f.SetCellValue(summarySheet, "A10", "Total Variance (BOE)")
	_ = f.SetCellValue(summarySheet, "B10", s.TotalVarianceBOE)
	_ = f.SetCellValue(summarySheet, "A11", "Revenue at Risk (GBP)")
	_ = f.SetCellValue(summarySheet, "B11", s.TotalRevenueAtRisk.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A12", "Governance Flags")
	_ = f.SetCellValue(summarySheet, "B12", len(s.Flags))
	_ = f.SetCellValue(summarySheet, "A13", "Fitted qi (BOE/month)")
	_ = f.SetCellValue(summarySheet, "B13", result.Parameters.Qi)
	_ = f.SetCellValue(summarySheet, "A14", "Fitted di (/month)")
	_ = f.SetCellValue(summarySheet, "B14", result.Parameters.Di)

	fiscalHeaders := []string{"Month", "t", "Actual (BOE)", "Forecast (BOE)", "Variance (BOE)",
		"Variance (%)", "Shut-in", "Exposure (GBP)", "Cumulative (GBP)"}
	for i, hdr := range fiscalHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(fiscalSheet, cell, hdr)
	}
	for i, rec := range result.Fiscal {
		row := i + 2
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("A%d", row), rec.Period.Format("2006-01"))
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("B%d", row), rec.T)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("C%d", row), rec.ActualBOE)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("D%d", row), rec.ForecastBOE)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("E%d", row), rec.VarianceBOE)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("F%d", row), rec.VariancePct)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("G%d", row), rec.IsShutIn)
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("H%d", row), rec.RevenueExposure.InexactFloat64())
		_ = f.SetCellValue(fiscalSheet, fmt.Sprintf("I%d", row), rec.CumulativeExposure.InexactFloat64())
	}

	flagHeaders := []string{"Flag", "Month", "Severity", "Variance (%)", "Exposure (GBP)", "Reason"}
	for i, hdr := range flagHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(flagsSheet, cell, hdr)
	}
	for i, flag := range result.Flags {
		row := i + 2
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("A%d", row), flag.FlagID)
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("B%d", row), flag.Period.Format("2006-01"))
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("C%d", row), string(flag.Severity))
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("D%d", row), flag.VariancePct)
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("E%d", row), flag.RevenueExposure.InexactFloat64())
		_ = f.SetCellValue(flagsSheet, fmt.Sprintf("F%d", row), flag.Reason)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildAuditPDF renders a compact statement: run metadata, fiscal totals
// and the flag table.
func buildAuditPDF(result *pipeline.Result) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	s := result.Summary
	pdf.Cell(0, 8, "Production Decline Audit Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Field: %s", displayFieldName(s.FieldName)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", result.RunID.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Analysis date: %s", s.AnalysisDate.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Settlement price: %s GBP/BOE", s.PricePerBarrel.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Governance threshold: %.1f%%", s.ThresholdPct))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Fitted model: qi=%.1f BOE/month, di=%.4f /month", result.Parameters.Qi, result.Parameters.Di))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Months analysed: %d (producing %d, shut-in %d)",
		s.MonthsAnalysed, s.ProducingMonths, s.MonthsShutIn))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total variance: %.1f BOE", s.TotalVarianceBOE))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Revenue at risk: %s GBP", s.TotalRevenueAtRisk.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "Flag", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Month", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Variance %", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Exposure GBP", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Reason", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, flag := range result.Flags {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", flag.FlagID), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, flag.Period.Format("2006-01"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, string(flag.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, fmt.Sprintf("%.2f", flag.VariancePct), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, flag.RevenueExposure.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(65, 6, flag.Reason, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	if len(result.Flags) == 0 {
		pdf.CellFormat(190, 6, "No governance flags raised", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
