// Package archive keeps a copy of what each sync run read and decided, under
// runs/<run_id>/ in an object store.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dvloznov/receipt-sync/internal/receipt"
)

// Archiver stores one object.
type Archiver interface {
	Put(ctx context.Context, objectName, contentType string, data []byte) error
}

// RunPrefix is the object prefix for everything archived by runID.
func RunPrefix(runID string) string {
	return path.Join("runs", runID)
}

// BasketObject is the object name of a basket's raw view.
func BasketObject(runID string, b receipt.RawBasket) string {
	return path.Join(RunPrefix(runID), "baskets", safeName(b.Type)+"-"+safeName(b.ID)+".html")
}

// ReportObject is the object name of the run report.
func ReportObject(runID string) string {
	return path.Join(RunPrefix(runID), "report.json")
}

// SaveRun writes every basket view and the JSON-encoded report.
func SaveRun(ctx context.Context, a Archiver, runID string, baskets []receipt.RawBasket, report interface{}) error {
	for _, b := range baskets {
		if err := a.Put(ctx, BasketObject(runID, b), "text/html; charset=utf-8", []byte(b.View)); err != nil {
			return fmt.Errorf("SaveRun: basket %s: %w", b.ID, err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveRun: encoding report: %w", err)
	}
	if err := a.Put(ctx, ReportObject(runID), "application/json", data); err != nil {
		return fmt.Errorf("SaveRun: report: %w", err)
	}
	return nil
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// Discard is the Archiver used when archiving is disabled.
var Discard Archiver = discard{}

type discard struct{}

func (discard) Put(context.Context, string, string, []byte) error { return nil }

// MemoryArchiver holds objects in a map.
type MemoryArchiver struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{Objects: make(map[string][]byte)}
}

func (m *MemoryArchiver) Put(ctx context.Context, objectName, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[objectName] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored object.
func (m *MemoryArchiver) Get(objectName string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[objectName]
	return data, ok
}
