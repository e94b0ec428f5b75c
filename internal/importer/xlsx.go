// Package importer turns uploaded quiz spreadsheets into domain.QuizImport
// payloads.
package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"proquiz-service/internal/domain"
)

const (
	colTitle       = "Quiz Title"
	colDescription = "Description"
	colAdmin       = "Quiz Administrator"
	colQuestion    = "Question"
	colType        = "Type"
	colCorrect     = "Correct Answer"
)

var (
	requiredColumns = []string{colTitle, colDescription, colAdmin, colQuestion, colType, colCorrect}
	optionColumns   = []string{"Option A", "Option B", "Option C", "Option D"}
)

// ParseXLSX reads the first sheet of a workbook. The header row names the
// columns; quiz metadata comes from the first data row. Rows without a
// question are ignored, rows with an unknown type are skipped and counted.
func ParseXLSX(r io.Reader) (domain.QuizImport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.QuizImport{}, domain.NewValidationError("excel", "not a readable xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.QuizImport{}, domain.NewValidationError("excel", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.QuizImport{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return domain.QuizImport{}, domain.NewValidationError("excel", "sheet is empty")
	}

	header := indexHeader(rows[0])
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return domain.QuizImport{}, domain.NewValidationError("excel", "missing required columns: "+strings.Join(missing, ", "))
	}

	var imp domain.QuizImport
	first := true
	for _, row := range rows[1:] {
		cell := func(col string) string {
			i, ok := header[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		if cell(colQuestion) == "" {
			continue
		}
		if first {
			imp.Title = cell(colTitle)
			imp.Description = cell(colDescription)
			imp.AdminName = cell(colAdmin)
			first = false
		}

		draft := domain.QuestionDraft{
			Text:          cell(colQuestion),
			CorrectAnswer: cell(colCorrect),
		}
		switch strings.ToLower(cell(colType)) {
		case "mcq":
			draft.Kind = domain.KindChoice
			for _, col := range optionColumns {
				if opt := cell(col); opt != "" {
					draft.Options = append(draft.Options, opt)
				}
			}
		case "fill":
			draft.Kind = domain.KindFreeText
		default:
			imp.Skipped++
			continue
		}
		imp.Questions = append(imp.Questions, draft)
	}
	return imp, nil
}

func indexHeader(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, name := range row {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := out[name]; !dup {
			out[name] = i
		}
	}
	return out
}
