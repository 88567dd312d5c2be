// Package xlsx renders circulation ledgers as Excel workbooks for the desk.
package xlsx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/neomorfeo/circulation/internal/domain"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const finesSheet = "Fines"

const (
	amountColumn = 6
	amountNumFmt = 2 // built-in "0.00"
)

var fineHeaders = []string{"Fine ID", "Member ID", "Loan ID", "Issued", "Days late", "Amount", "Paid", "Paid at"}

// WriteFines writes one row per fine under a header row.
func WriteFines(w io.Writer, fines []domain.Fine) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", finesSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(finesSheet, "A1", &fineHeaders); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, fine := range fines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		paidAt := ""
		if fine.PaidAt != nil {
			paidAt = fine.PaidAt.Format("2006-01-02 15:04")
		}
		row := []any{
			fine.ID,
			fine.MemberID,
			fine.LoanID,
			fine.IssuedDate.Format("2006-01-02"),
			fine.DaysLate,
			fine.Amount.InexactFloat64(),
			fine.Paid,
			paidAt,
		}
		if err := f.SetSheetRow(finesSheet, cell, &row); err != nil {
			return fmt.Errorf("writing fine %s: %w", fine.ID, err)
		}
	}

	if len(fines) > 0 {
		if err := formatAmounts(f, len(fines)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// formatAmounts shows the amount column with two decimals.
func formatAmounts(f *excelize.File, n int) error {
	style, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		return fmt.Errorf("creating amount style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(amountColumn, n+1)
	if err != nil {
		return err
	}
	first, err := excelize.CoordinatesToCellName(amountColumn, 2)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(finesSheet, first, last, style); err != nil {
		return fmt.Errorf("formatting amounts: %w", err)
	}
	return nil
}

// FinesWorkbook returns the fines export as bytes.
func FinesWorkbook(fines []domain.Fine) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFines(&buf, fines); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
