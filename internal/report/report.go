// Package report renders projected tasks as an Excel workbook.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/UnknownOlympus/custodian/internal/i18n"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/xuri/excelize/v2"
)

var ErrNoTasks = errors.New("failed to generate report, 0 task were provided")

const maxSheetNameLength = 31

// columns are the locale key suffixes of the header row, A to H.
var columns = []string{"date", "task", "location", "type", "window", "status", "completed_by", "comment"}

// Generator holds the state for the Excel report generation process.
type Generator struct {
	file      *excelize.File
	localizer *i18n.Localizer
	lang      string
	zones     map[string]*time.Location
}

// NewGenerator creates a new report generator writing headers in lang.
func NewGenerator(localizer *i18n.Localizer, lang string) *Generator {
	return &Generator{
		file:      excelize.NewFile(),
		localizer: localizer,
		lang:      i18n.NormalizeLanguageCode(lang),
		zones:     make(map[string]*time.Location),
	}
}

// GenerateWorkbook writes one sheet per facility, in facility name order, with the
// tasks in the order they were given. Windows are shown in facility-local time.
func GenerateWorkbook(tasks []models.Task, localizer *i18n.Localizer, lang string) (*bytes.Buffer, error) {
	var err error

	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	byFacility := make(map[string][]models.Task)
	var facilities []string
	for _, task := range tasks {
		if _, ok := byFacility[task.FacilityName]; !ok {
			facilities = append(facilities, task.FacilityName)
		}
		byFacility[task.FacilityName] = append(byFacility[task.FacilityName], task)
	}
	sort.Strings(facilities)

	gen := NewGenerator(localizer, lang)
	defer gen.file.Close()

	if err = gen.addSheets(facilities, byFacility); err != nil {
		return nil, fmt.Errorf("failed to add sheets: %w", err)
	}

	// setup first sheet as active
	gen.file.SetActiveSheet(0)

	// delete default sheet
	if sheetIndex, _ := gen.file.GetSheetIndex("Sheet1"); sheetIndex != -1 {
		if err = gen.file.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to delete default sheet 'Sheet1': %w", err)
		}
	}

	buffer, err := gen.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write data from saved file: %w", err)
	}

	return buffer, nil
}

// addSheets creates a sheet per facility and fills it with the facility's tasks.
func (g *Generator) addSheets(facilities []string, byFacility map[string][]models.Task) error {
	var err error
	headerIndex := 2
	used := make(map[string]bool)

	for i, facility := range facilities {
		sheetName := uniqueSheetName(facility, used)

		if _, err = g.file.NewSheet(sheetName); err != nil {
			return fmt.Errorf("failed to generate new sheet '%s': %w", sheetName, err)
		}

		tasks := byFacility[facility]
		if err = g.setupSheet(sheetName, i, len(tasks)); err != nil {
			return fmt.Errorf("failed to setup sheet '%s': %w", sheetName, err)
		}

		for j, task := range tasks {
			if err = g.addRow(sheetName, j+headerIndex, task); err != nil { // j+2, the first row is the header
				return fmt.Errorf("failed to add row '%d': %w", j+headerIndex, err)
			}
		}
	}
	return nil
}

// setupSheet writes the localized header, column widths and a table over rowCount rows.
func (g *Generator) setupSheet(sheetName string, index, rowCount int) error {
	var err error

	headerStyle, err := g.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center", Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create new style: %w", err)
	}

	rowHeight := 20
	headers := make([]string, 0, len(columns))
	for _, column := range columns {
		headers = append(headers, g.localizer.Get(g.lang, "export.header."+column))
	}
	if err = g.file.SetRowHeight(sheetName, 1, float64(rowHeight)); err != nil {
		return fmt.Errorf("failed to set row height for headers: %w", err)
	}
	if err = g.file.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to set sheet row for headers: %w", err)
	}
	if err = g.file.SetCellStyle(sheetName, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("failed to set cell style for headers: %w", err)
	}

	widths := map[string]float64{
		"A": 12, "B": 40, "C": 40, "D": 20, "E": 14, "F": 22, "G": 18, "H": 50, //nolint:mnd // const values for row width
	}
	for col, width := range widths {
		if err = g.file.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err = g.file.AddTable(sheetName, &excelize.Table{
		Range:     fmt.Sprintf("A1:H%d", rowCount+1),
		Name:      fmt.Sprintf("tasks_%d", index+1),
		StyleName: "TableStyleMedium9",
	}); err != nil {
		return fmt.Errorf("failed to add table: %w", err)
	}

	return nil
}

func (g *Generator) addRow(sheetName string, rowNum int, task models.Task) error {
	loc := g.location(task)
	rowData := []interface{}{
		task.Date.In(time.UTC).Format("02.01.2006"),
		task.Name,
		task.Location,
		task.WorkType,
		task.ScheduledStart.In(loc).Format("15:04") + "-" + task.ScheduledEnd.In(loc).Format("15:04"),
		g.localizer.Get(g.lang, "status."+string(task.Status)),
		task.CompletedBy,
		task.CompletionComment,
	}
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)

	if err := g.file.SetSheetRow(sheetName, cell, &rowData); err != nil {
		return fmt.Errorf("failed to set sheet row: %w", err)
	}

	return nil
}

// location returns the facility zone of task; unknown zones fall back to the stored instant's zone.
func (g *Generator) location(task models.Task) *time.Location {
	if loc, ok := g.zones[task.Timezone]; ok {
		return loc
	}
	loc, err := time.LoadLocation(task.Timezone)
	if err != nil || task.Timezone == "" {
		loc = task.ScheduledStart.Location()
	}
	g.zones[task.Timezone] = loc
	return loc
}

// uniqueSheetName strips characters Excel rejects, truncates to 31 runes and
// appends a counter when the result is already taken.
func uniqueSheetName(name string, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return ' '
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "Facility"
	}

	candidate := truncateSheetName(name, maxSheetNameLength)
	for i := 2; used[candidate]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateSheetName(name, maxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
	}
	used[candidate] = true

	return candidate
}

func truncateSheetName(name string, limit int) string {
	if utf8.RuneCountInString(name) > limit {
		runes := []rune(name)
		return string(runes[:limit])
	}
	return name
}
