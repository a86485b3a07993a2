// Package directory imports the employee roster from HR exports so device
// user IDs resolve to people during ingestion.
package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

// Definition of fields in an employee CSV export.
type ColumnDefinition struct {
	NameField   string
	EmailField  string
	DeviceField string
	StatusField string

	ActiveStatus string

	Language string
}

// Known field names in employee exports, in different languages.
// HR systems rename these columns between versions.
var ColumnDefinitions = []ColumnDefinition{
	{
		NameField:    "FULL NAME",
		EmailField:   "E-MAIL",
		DeviceField:  "DEVICE USER ID",
		StatusField:  "EMPLOYMENT STATUS",
		ActiveStatus: "Active",
		Language:     "en",
	},
	{
		NameField:    "NAAM",
		EmailField:   "E-MAILADRES",
		DeviceField:  "APPARAAT ID",
		StatusField:  "DIENSTVERBAND",
		ActiveStatus: "Actief",
		Language:     "nl",
	},
}

type Store interface {
	UpsertEmployee(ctx context.Context, e *storage.Employee) error
}

// ImportResult summarizes one file import.
type ImportResult struct {
	Imported int
	Skipped  int
	Language string
}

type Importer struct {
	store  Store
	logger *slog.Logger
}

func NewImporter(store Store) *Importer {
	return &Importer{
		store:  store,
		logger: slog.With("component", "directory"),
	}
}

// ImportFile reads an employee CSV and upserts each row, keyed on the device
// user ID. Rows without a device user ID are skipped, not fatal.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	var result ImportResult

	f, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader, err := newDecodingReader(f)
	if err != nil {
		return result, err
	}

	headers, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("failed to read CSV header: %w", err)
	}

	def, index, err := matchColumns(headers)
	if err != nil {
		return result, err
	}
	result.Language = def.Language

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("error reading CSV: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		deviceUserID := strings.TrimSpace(record[index.device])
		if deviceUserID == "" {
			result.Skipped++
			continue
		}

		active := true
		if index.status != -1 {
			active = strings.TrimSpace(record[index.status]) == def.ActiveStatus
		}

		employee := &storage.Employee{
			FullName:     strings.TrimSpace(record[index.name]),
			Email:        strings.TrimSpace(record[index.email]),
			DeviceUserID: deviceUserID,
			IsActive:     active,
		}
		if err := im.store.UpsertEmployee(ctx, employee); err != nil {
			return result, fmt.Errorf("failed to store employee %q: %w", deviceUserID, err)
		}
		result.Imported++
	}

	im.logger.Info("Employee roster imported",
		"file", path,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"language", def.Language,
	)
	return result, nil
}

// newDecodingReader wraps f in a CSV reader, decoding UTF-16 when the file
// starts with a BOM. HR exports ship UTF-16 with BOM.
func newDecodingReader(f *os.File) (*csv.Reader, error) {
	bom := make([]byte, 2)
	n, err := f.Read(bom)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read BOM: %w", err)
	}

	var reader *csv.Reader
	if n == 2 && (bom[0] == 0xFE && bom[1] == 0xFF || bom[0] == 0xFF && bom[1] == 0xFE) {
		utf16bom := unicode.BOMOverride(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
		utf16Reader := transform.NewReader(io.MultiReader(
			// Prepend BOM bytes back to stream
			strings.NewReader(string(bom)),
			f,
		), utf16bom)
		reader = csv.NewReader(utf16Reader)
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek file: %w", err)
		}
		reader = csv.NewReader(f)
	}

	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = 0
	return reader, nil
}

type columnIndex struct {
	name   int
	email  int
	device int
	status int
}

func matchColumns(headers []string) (ColumnDefinition, columnIndex, error) {
	for _, def := range ColumnDefinitions {
		idx := columnIndex{name: -1, email: -1, device: -1, status: -1}
		for i, h := range headers {
			switch strings.TrimSpace(h) {
			case def.NameField:
				idx.name = i
			case def.EmailField:
				idx.email = i
			case def.DeviceField:
				idx.device = i
			case def.StatusField:
				idx.status = i
			}
		}
		if idx.name != -1 && idx.email != -1 && idx.device != -1 {
			return def, idx, nil
		}
	}
	return ColumnDefinition{}, columnIndex{}, fmt.Errorf("CSV file missing required fields")
}
