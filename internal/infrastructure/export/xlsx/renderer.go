// Package xlsx renders extraction results as an Excel workbook.
package xlsx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const sheetName = "Samples"

var fixedHeaders = []string{
	"Sample ID",
	"Filename",
	"Status",
	"Template ID",
	"Provider",
	"Confidence",
	"Manual",
	"Updated At",
}

// Renderer writes one row per sample. Extracted fields become extra columns,
// the union of all field names in alphabetical order.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) RenderSamples(samples []domain.Sample) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	fieldNames := collectFieldNames(samples)
	headers := append(append([]string{}, fixedHeaders...), fieldNames...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for idx, sample := range samples {
		row := idx + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, sample.ID)
		write(2, sample.Filename)
		write(3, string(sample.Status))
		if sample.TemplateID != nil {
			write(4, *sample.TemplateID)
		}
		result := sample.Result
		if result != nil {
			write(5, result.Provider)
			if result.Confidence != nil {
				write(6, *result.Confidence)
			}
			if result.ManualAssignment != nil {
				write(7, *result.ManualAssignment)
			}
		}
		write(8, sample.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))

		if result == nil {
			continue
		}
		for i, name := range fieldNames {
			if v, ok := result.Fields[name]; ok && v != nil {
				write(len(fixedHeaders)+i+1, cellValue(v))
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "B", 28)
	_ = f.SetColWidth(sheetName, "C", "C", 18)
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func collectFieldNames(samples []domain.Sample) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		if s.Result == nil {
			continue
		}
		for name := range s.Result.Fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cellValue(v any) any {
	switch t := v.(type) {
	case string, float64, float32, int, int64, bool:
		return t
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
