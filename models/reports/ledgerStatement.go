package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/admission_billing/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const statementSheet = "Statement"

// LedgerStatementWorkbook lays out an admission's services, ledger entries and
// recomputed totals on one sheet.
func LedgerStatementWorkbook(view *models.AdmissionLedgerView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	admission := view.Admission
	set := func(cell string, value any) {
		_ = f.SetCellValue(statementSheet, cell, value)
	}

	set("A1", "Admission")
	set("B1", admission.AdmissionNumber)
	set("A2", "Patient")
	set("B2", admission.PatientName)
	set("A3", "Admitted")
	set("B3", admission.AdmittedAt.Format("2006-01-02 15:04"))
	_ = f.SetCellStyle(statementSheet, "A1", "A3", bold)

	row := 5
	set(fmt.Sprintf("A%d", row), "Service")
	set(fmt.Sprintf("B%d", row), "Quantity")
	set(fmt.Sprintf("C%d", row), "Rate")
	set(fmt.Sprintf("D%d", row), "Amount")
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row), bold)
	for _, s := range admission.Services {
		row++
		set(fmt.Sprintf("A%d", row), s.Name)
		set(fmt.Sprintf("B%d", row), s.Quantity.InexactFloat64())
		set(fmt.Sprintf("C%d", row), s.Rate.InexactFloat64())
		set(fmt.Sprintf("D%d", row), s.Amount.InexactFloat64())
		_ = f.SetCellStyle(statementSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), money)
	}

	row += 2
	set(fmt.Sprintf("A%d", row), "Date")
	set(fmt.Sprintf("B%d", row), "Kind")
	set(fmt.Sprintf("C%d", row), "Channel")
	set(fmt.Sprintf("D%d", row), "Amount")
	set(fmt.Sprintf("E%d", row), "Note")
	set(fmt.Sprintf("F%d", row), "Attributed To")
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), bold)
	for _, tx := range view.Transactions {
		row++
		set(fmt.Sprintf("A%d", row), tx.OccurredAt.Format("2006-01-02 15:04"))
		set(fmt.Sprintf("B%d", row), string(tx.Kind))
		set(fmt.Sprintf("C%d", row), tx.Channel)
		set(fmt.Sprintf("D%d", row), tx.Amount.InexactFloat64())
		set(fmt.Sprintf("E%d", row), tx.Note)
		set(fmt.Sprintf("F%d", row), tx.AttributedTo)
		_ = f.SetCellStyle(statementSheet, fmt.Sprintf("D%d", row), fmt.Sprintf("D%d", row), money)
	}

	s := view.Summary
	dueLabel := "Due"
	if view.RefundOwed {
		dueLabel = "Refund Due"
	}
	totals := []struct {
		label string
		value any
	}{
		{"Bill Subtotal", s.BillSubtotal.InexactFloat64()},
		{"Discount", s.ActiveDiscount.InexactFloat64()},
		{"Net Total", s.NetTotal.InexactFloat64()},
		{"Total Collected", s.TotalCollected.InexactFloat64()},
		{dueLabel, s.Due.Abs().InexactFloat64()},
		{"In Words", view.DueInWords},
	}
	row++
	for _, t := range totals {
		row++
		set(fmt.Sprintf("C%d", row), t.label)
		set(fmt.Sprintf("D%d", row), t.value)
		_ = f.SetCellStyle(statementSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), bold)
	}
	_ = f.SetColWidth(statementSheet, "A", "A", 22)
	_ = f.SetColWidth(statementSheet, "E", "F", 24)
	return f, nil
}

// LedgerStatement renders the statement of one admission as xlsx bytes.
func LedgerStatement(ctx context.Context, admissionId int) ([]byte, string, error) {
	started := time.Now()
	defer logSlowReport(ctx, "ledger_statement", started, logrus.Fields{"admission_id": admissionId})

	view, err := models.GetAdmissionLedgerView(ctx, admissionId)
	if err != nil {
		return nil, "", err
	}
	f, err := LedgerStatementWorkbook(view)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("statement-%s.xlsx", view.Admission.AdmissionNumber), nil
}
