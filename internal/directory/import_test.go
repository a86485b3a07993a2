package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/unicode"

	"github.com/mubeen104/uips-attendance/internal/storage"
)

type fakeEmployeeStore struct {
	byDeviceID map[string]storage.Employee
}

func newFakeEmployeeStore() *fakeEmployeeStore {
	return &fakeEmployeeStore{byDeviceID: make(map[string]storage.Employee)}
}

func (s *fakeEmployeeStore) UpsertEmployee(_ context.Context, e *storage.Employee) error {
	s.byDeviceID[e.DeviceUserID] = *e
	return nil
}

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportFile_EnglishRoster(t *testing.T) {
	path := writeRoster(t,
		"FULL NAME\tE-MAIL\tDEVICE USER ID\tEMPLOYMENT STATUS\n"+
			"Alice Khan\talice@example.com\t101\tActive\n"+
			"Bob Stone\tbob@example.com\t102\tTerminated\n"+
			"No Device\tnodev@example.com\t\tActive\n")

	store := newFakeEmployeeStore()
	result, err := NewImporter(store).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	if result.Imported != 2 || result.Skipped != 1 || result.Language != "en" {
		t.Errorf("result = %+v", result)
	}

	alice := store.byDeviceID["101"]
	if alice.FullName != "Alice Khan" || alice.Email != "alice@example.com" || !alice.IsActive {
		t.Errorf("alice = %+v", alice)
	}
	bob := store.byDeviceID["102"]
	if bob.IsActive {
		t.Error("terminated employee imported as active")
	}
}

func TestImportFile_DutchRoster(t *testing.T) {
	path := writeRoster(t,
		"NAAM\tE-MAILADRES\tAPPARAAT ID\tDIENSTVERBAND\n"+
			"Jan de Vries\tjan@example.nl\t201\tActief\n")

	store := newFakeEmployeeStore()
	result, err := NewImporter(store).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Imported != 1 || result.Language != "nl" {
		t.Errorf("result = %+v", result)
	}
	if !store.byDeviceID["201"].IsActive {
		t.Error("active Dutch status not recognized")
	}
}

func TestImportFile_UTF16WithBOM(t *testing.T) {
	plain := "FULL NAME\tE-MAIL\tDEVICE USER ID\tEMPLOYMENT STATUS\n" +
		"Alice Khan\talice@example.com\t101\tActive\n"
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := encoder.String(plain)
	if err != nil {
		t.Fatal(err)
	}
	path := writeRoster(t, encoded)

	store := newFakeEmployeeStore()
	result, err := NewImporter(store).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("result = %+v", result)
	}
	if store.byDeviceID["101"].FullName != "Alice Khan" {
		t.Errorf("employee = %+v", store.byDeviceID["101"])
	}
}

func TestImportFile_MissingStatusColumnDefaultsActive(t *testing.T) {
	path := writeRoster(t,
		"FULL NAME\tE-MAIL\tDEVICE USER ID\n"+
			"Alice Khan\talice@example.com\t101\n")

	store := newFakeEmployeeStore()
	if _, err := NewImporter(store).ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if !store.byDeviceID["101"].IsActive {
		t.Error("employee without status column must default to active")
	}
}

func TestImportFile_UnknownHeaders(t *testing.T) {
	path := writeRoster(t, "FOO\tBAR\tBAZ\nx\ty\tz\n")

	_, err := NewImporter(newFakeEmployeeStore()).ImportFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for unrecognized headers")
	}
}

func TestImportFile_MissingFile(t *testing.T) {
	_, err := NewImporter(newFakeEmployeeStore()).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
