/*
Package backup serializes the full entity set as one versioned document.

FORMAT:
  A single JSON object, indented for humans:

    {
      "version": "3",
      "exportedAt": "2025-03-10T18:00:00Z",
      "products": [...], "variants": [...], "shifts": [...],
      "sales": [...], "expenses": [...], "returns": [...],
      "customers": [...], "discounts": [...]
    }

  Version "2.0" documents (no returns, millisecond "timestamp" instead of
  "exportedAt") are still accepted on import.

IMPORT:
  Replaces catalog and ledger state wholesale. Shift repair runs on the
  imported history, then every record is re-emitted so the replication
  worker rewrites the durable store. Customers and discounts are restored
  only when the document carries their array; older documents leave the
  current records in place.
*/
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/warp/cashdrawer/pos"
)

// Version is written by Export.
const Version = "3"

var supported = map[string]bool{Version: true, "2.0": true}

type Document struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Timestamp  int64          `json:"timestamp,omitempty"`
	Products   []pos.Product  `json:"products"`
	Variants   []pos.Variant  `json:"variants"`
	Shifts     []pos.Shift    `json:"shifts"`
	Sales      []pos.Sale     `json:"sales"`
	Expenses   []pos.Expense  `json:"expenses"`
	Returns    []pos.Return   `json:"returns"`
	Customers  []pos.Customer `json:"customers"`
	Discounts  []pos.Discount `json:"discounts"`
}

func (d Document) snapshot() pos.Snapshot {
	return pos.Snapshot{
		Products:  d.Products,
		Variants:  d.Variants,
		Shifts:    d.Shifts,
		Sales:     d.Sales,
		Expenses:  d.Expenses,
		Returns:   d.Returns,
		Customers: d.Customers,
		Discounts: d.Discounts,
	}
}

// Catalog is the catalog state the backup reads and restores.
type Catalog interface {
	Products() []pos.Product
	Variants() []pos.Variant
	Restore(s pos.Snapshot)
}

// Ledger is the ledger state the backup reads and restores.
type Ledger interface {
	Snapshot() pos.Snapshot
	Restore(s pos.Snapshot) int
}

// Book is a customer or discount book.
type Book interface {
	Snapshot() pos.Snapshot
	Restore(s pos.Snapshot)
}

// Result summarizes an import.
type Result struct {
	Version  string `json:"version"`
	Products int    `json:"products"`
	Variants int    `json:"variants"`
	Shifts   int    `json:"shifts"`
	Sales    int    `json:"sales"`
	Expenses int    `json:"expenses"`
	Returns  int    `json:"returns"`
	Repaired int    `json:"repaired"`

	Customers int `json:"customers"`
	Discounts int `json:"discounts"`
}

type Service struct {
	catalog   Catalog
	ledger    Ledger
	customers Book
	discounts Book
	now       func() time.Time
}

func New(catalog Catalog, ledger Ledger) *Service {
	return &Service{
		catalog: catalog,
		ledger:  ledger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces time.Now for exportedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithCustomers includes the customer book in exports and imports.
func (s *Service) WithCustomers(b Book) *Service {
	s.customers = b
	return s
}

// WithDiscounts includes the discount book in exports and imports.
func (s *Service) WithDiscounts(b Book) *Service {
	s.discounts = b
	return s
}

// Document captures the current state. Empty collections are written as
// empty arrays, never null.
func (s *Service) Document() Document {
	led := s.ledger.Snapshot()
	doc := Document{
		Version:    Version,
		ExportedAt: s.now(),
		Products:   nonNil(s.catalog.Products()),
		Variants:   nonNil(s.catalog.Variants()),
		Shifts:     nonNil(led.Shifts),
		Sales:      nonNil(led.Sales),
		Expenses:   nonNil(led.Expenses),
		Returns:    nonNil(led.Returns),
		Customers:  []pos.Customer{},
		Discounts:  []pos.Discount{},
	}
	if s.customers != nil {
		doc.Customers = nonNil(s.customers.Snapshot().Customers)
	}
	if s.discounts != nil {
		doc.Discounts = nonNil(s.discounts.Snapshot().Discounts)
	}
	return doc
}

func (s *Service) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Document()); err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}
	return nil
}

// Import reads a document and replaces the whole state with it. Nothing is
// changed when the document is rejected.
func (s *Service) Import(r io.Reader) (Result, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Result{}, &pos.ValidationError{Field: "document", Message: fmt.Sprintf("not a backup document: %v", err)}
	}
	if err := Validate(doc); err != nil {
		return Result{}, err
	}

	snap := doc.snapshot()
	s.catalog.Restore(snap)
	repaired := s.ledger.Restore(snap)
	if s.customers != nil && doc.Customers != nil {
		s.customers.Restore(snap)
	}
	if s.discounts != nil && doc.Discounts != nil {
		s.discounts.Restore(snap)
	}

	return Result{
		Version:  doc.Version,
		Products: len(doc.Products),
		Variants: len(doc.Variants),
		Shifts:   len(doc.Shifts),
		Sales:    len(doc.Sales),
		Expenses: len(doc.Expenses),
		Returns:  len(doc.Returns),
		Repaired: repaired,

		Customers: len(doc.Customers),
		Discounts: len(doc.Discounts),
	}, nil
}

// Validate checks the document envelope and record ids.
func Validate(doc Document) error {
	if !supported[doc.Version] {
		return &pos.ValidationError{Field: "version", Message: fmt.Sprintf("unsupported backup version %q", doc.Version)}
	}
	if doc.Products == nil {
		return &pos.ValidationError{Field: "products", Message: "missing products array"}
	}
	for _, c := range doc.snapshot().Changes() {
		if c.ID == "" {
			return &pos.ValidationError{Field: string(c.Kind), Message: "record without id"}
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
