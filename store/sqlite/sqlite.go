/*
Package sqlite provides a SQLite-backed implementation of pos.Store.

PURPOSE:
  Local durable store for a single till. Every collection gets its own
  table with typed columns; nested values (sale lines, attributes) are
  stored as JSON text.

WRITE SEMANTICS:
  Apply() upserts or deletes whole records by id inside one SQL
  transaction. There are no partial updates and no optimistic-lock
  columns: the last write wins.

KEY TABLES:
  products, variants: Catalog
  shifts:             One row per cash drawer session
  sales:              Immutable sale records with item snapshots
  expenses:           Petty-cash withdrawals per shift
  returns:            Return workflow records
  customers:          Buyers with running purchase totals
  discounts:          Automatic and coupon discount rules

TYPES:
  Money is stored as decimal TEXT, never REAL. Times are RFC3339 TEXT in UTC.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pos.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - pos/store.go: Store interface
  - pos/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// Store implements pos.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		attributes_json TEXT,
		base_price TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		sku TEXT,
		barcode TEXT,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL,
		attribute_summary TEXT,
		attribute_values_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_variants_product ON variants(product_id);
	CREATE INDEX IF NOT EXISTS idx_variants_barcode ON variants(barcode);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		opened_at TEXT NOT NULL,
		closed_at TEXT,
		start_cash TEXT NOT NULL,
		end_cash_expected TEXT NOT NULL,
		end_cash_actual TEXT,
		status TEXT NOT NULL,
		opened_by_id TEXT NOT NULL,
		opened_by_name TEXT,
		closed_by_id TEXT,
		closed_by_name TEXT
	);

	-- Repair scans for OPEN shifts on every load
	CREATE INDEX IF NOT EXISTS idx_shifts_status ON shifts(status);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		total TEXT NOT NULL,
		items_json TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		shift_id TEXT,
		user_id TEXT NOT NULL,
		user_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sales_shift ON sales(shift_id);
	CREATE INDEX IF NOT EXISTS idx_sales_timestamp ON sales(timestamp);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		timestamp TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_shift ON expenses(shift_id);

	CREATE TABLE IF NOT EXISTS returns (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL,
		items_json TEXT NOT NULL,
		reason TEXT,
		refund_amount TEXT NOT NULL,
		refund_method TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		shift_id TEXT,
		timestamp TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT,
		processed_by_id TEXT,
		processed_by_name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_returns_sale ON returns(sale_id);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT,
		notes TEXT,
		total_purchases INTEGER NOT NULL,
		total_spent TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_purchase_at TEXT
	);

	CREATE TABLE IF NOT EXISTS discounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		scope TEXT NOT NULL,
		product_ids_json TEXT,
		category_names_json TEXT,
		coupon_code TEXT,
		min_purchase TEXT NOT NULL,
		max_discount TEXT NOT NULL,
		valid_from TEXT,
		valid_until TEXT,
		usage_limit INTEGER NOT NULL,
		usage_count INTEGER NOT NULL,
		active INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_discounts_coupon ON discounts(coupon_code);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES (pos.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var tables = map[pos.Kind]string{
	pos.KindProduct:  "products",
	pos.KindVariant:  "variants",
	pos.KindShift:    "shifts",
	pos.KindSale:     "sales",
	pos.KindExpense:  "expenses",
	pos.KindReturn:   "returns",
	pos.KindCustomer: "customers",
	pos.KindDiscount: "discounts",
}

// Apply writes all changes atomically.
func (s *Store) Apply(ctx context.Context, changes ...pos.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, c := range changes {
		if err := applyChange(ctx, sqlTx, c); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func applyChange(ctx context.Context, db execer, c pos.Change) error {
	table, ok := tables[c.Kind]
	if !ok {
		return fmt.Errorf("unknown collection %q", c.Kind)
	}
	if c.Op == pos.OpDelete {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", c.ID); err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", c.Kind, c.ID, err)
		}
		return nil
	}

	var err error
	switch e := c.Entity.(type) {
	case pos.Product:
		err = upsertProduct(ctx, db, e)
	case pos.Variant:
		err = upsertVariant(ctx, db, e)
	case pos.Shift:
		err = upsertShift(ctx, db, e)
	case pos.Sale:
		err = upsertSale(ctx, db, e)
	case pos.Expense:
		err = upsertExpense(ctx, db, e)
	case pos.Return:
		err = upsertReturn(ctx, db, e)
	case pos.Customer:
		err = upsertCustomer(ctx, db, e)
	case pos.Discount:
		err = upsertDiscount(ctx, db, e)
	default:
		return fmt.Errorf("unsupported entity %T for %s", c.Entity, c.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", c.Kind, c.ID, err)
	}
	return nil
}

func upsertProduct(ctx context.Context, db execer, p pos.Product) error {
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, category, attributes_json, base_price)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			attributes_json = excluded.attributes_json,
			base_price = excluded.base_price
	`, p.ID, p.Name, p.Description, p.Category, string(attrs), p.BasePrice.String())
	return err
}

func upsertVariant(ctx context.Context, db execer, v pos.Variant) error {
	values, err := json.Marshal(v.AttributeValues)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, sku, barcode, price, stock, attribute_summary, attribute_values_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			sku = excluded.sku,
			barcode = excluded.barcode,
			price = excluded.price,
			stock = excluded.stock,
			attribute_summary = excluded.attribute_summary,
			attribute_values_json = excluded.attribute_values_json
	`, v.ID, v.ProductID, v.SKU, v.Barcode, v.Price.String(), v.Stock, v.AttributeSummary, string(values))
	return err
}

func upsertShift(ctx context.Context, db execer, sh pos.Shift) error {
	var closedAt, actual, closedByID, closedByName sql.NullString
	if sh.ClosedAt != nil {
		closedAt = nullString(formatTime(*sh.ClosedAt))
	}
	if sh.EndCashActual != nil {
		actual = nullString(sh.EndCashActual.String())
	}
	if sh.ClosedBy != nil {
		closedByID = nullString(string(sh.ClosedBy.ID))
		closedByName = nullString(sh.ClosedBy.Name)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO shifts (id, opened_at, closed_at, start_cash, end_cash_expected, end_cash_actual,
		                    status, opened_by_id, opened_by_name, closed_by_id, closed_by_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			opened_at = excluded.opened_at,
			closed_at = excluded.closed_at,
			start_cash = excluded.start_cash,
			end_cash_expected = excluded.end_cash_expected,
			end_cash_actual = excluded.end_cash_actual,
			status = excluded.status,
			opened_by_id = excluded.opened_by_id,
			opened_by_name = excluded.opened_by_name,
			closed_by_id = excluded.closed_by_id,
			closed_by_name = excluded.closed_by_name
	`,
		sh.ID,
		formatTime(sh.OpenedAt),
		closedAt,
		sh.StartCash.String(),
		sh.EndCashExpected.String(),
		actual,
		sh.Status,
		sh.OpenedBy.ID,
		sh.OpenedBy.Name,
		closedByID,
		closedByName,
	)
	return err
}

func upsertSale(ctx context.Context, db execer, sa pos.Sale) error {
	items, err := json.Marshal(sa.Items)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sales (id, timestamp, total, items_json, payment_method, shift_id, user_id, user_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			total = excluded.total,
			items_json = excluded.items_json,
			payment_method = excluded.payment_method,
			shift_id = excluded.shift_id,
			user_id = excluded.user_id,
			user_name = excluded.user_name
	`, sa.ID, formatTime(sa.Timestamp), sa.Total.String(), string(items), sa.PaymentMethod,
		nullString(string(sa.ShiftID)), sa.User.ID, sa.User.Name)
	return err
}

func upsertExpense(ctx context.Context, db execer, e pos.Expense) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO expenses (id, shift_id, amount, category, description, timestamp, user_id, user_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shift_id = excluded.shift_id,
			amount = excluded.amount,
			category = excluded.category,
			description = excluded.description,
			timestamp = excluded.timestamp,
			user_id = excluded.user_id,
			user_name = excluded.user_name
	`, e.ID, e.ShiftID, e.Amount.String(), e.Category, e.Description, formatTime(e.Timestamp), e.User.ID, e.User.Name)
	return err
}

func upsertReturn(ctx context.Context, db execer, r pos.Return) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return err
	}
	var processedByID, processedByName sql.NullString
	if r.ProcessedBy != nil {
		processedByID = nullString(string(r.ProcessedBy.ID))
		processedByName = nullString(r.ProcessedBy.Name)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO returns (id, sale_id, items_json, reason, refund_amount, refund_method, status, notes,
		                     shift_id, timestamp, user_id, user_name, processed_by_id, processed_by_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sale_id = excluded.sale_id,
			items_json = excluded.items_json,
			reason = excluded.reason,
			refund_amount = excluded.refund_amount,
			refund_method = excluded.refund_method,
			status = excluded.status,
			notes = excluded.notes,
			shift_id = excluded.shift_id,
			timestamp = excluded.timestamp,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			processed_by_id = excluded.processed_by_id,
			processed_by_name = excluded.processed_by_name
	`,
		r.ID, r.SaleID, string(items), r.Reason, r.RefundAmount.String(), r.RefundMethod, r.Status, r.Notes,
		nullString(string(r.ShiftID)), formatTime(r.Timestamp), r.User.ID, r.User.Name,
		processedByID, processedByName,
	)
	return err
}

func upsertCustomer(ctx context.Context, db execer, c pos.Customer) error {
	var lastPurchase sql.NullString
	if c.LastPurchaseAt != nil {
		lastPurchase = nullString(formatTime(*c.LastPurchaseAt))
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, address, notes, total_purchases, total_spent,
		                       created_at, last_purchase_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			notes = excluded.notes,
			total_purchases = excluded.total_purchases,
			total_spent = excluded.total_spent,
			created_at = excluded.created_at,
			last_purchase_at = excluded.last_purchase_at
	`, c.ID, c.Name, nullString(c.Email), nullString(c.Phone), nullString(c.Address), nullString(c.Notes),
		c.TotalPurchases, c.TotalSpent.String(), formatTime(c.CreatedAt), lastPurchase)
	return err
}

func upsertDiscount(ctx context.Context, db execer, d pos.Discount) error {
	var productIDs, categories sql.NullString
	if len(d.ProductIDs) > 0 {
		raw, err := json.Marshal(d.ProductIDs)
		if err != nil {
			return err
		}
		productIDs = nullString(string(raw))
	}
	if len(d.CategoryNames) > 0 {
		raw, err := json.Marshal(d.CategoryNames)
		if err != nil {
			return err
		}
		categories = nullString(string(raw))
	}
	var validFrom, validUntil sql.NullString
	if d.ValidFrom != nil {
		validFrom = nullString(formatTime(*d.ValidFrom))
	}
	if d.ValidUntil != nil {
		validUntil = nullString(formatTime(*d.ValidUntil))
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO discounts (id, name, type, value, scope, product_ids_json, category_names_json, coupon_code,
		                       min_purchase, max_discount, valid_from, valid_until, usage_limit, usage_count,
		                       active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			value = excluded.value,
			scope = excluded.scope,
			product_ids_json = excluded.product_ids_json,
			category_names_json = excluded.category_names_json,
			coupon_code = excluded.coupon_code,
			min_purchase = excluded.min_purchase,
			max_discount = excluded.max_discount,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until,
			usage_limit = excluded.usage_limit,
			usage_count = excluded.usage_count,
			active = excluded.active,
			created_at = excluded.created_at
	`,
		d.ID, d.Name, d.Type, d.Value.String(), d.Scope, productIDs, categories, nullString(d.CouponCode),
		d.MinPurchase.String(), d.MaxDiscount.String(), validFrom, validUntil, d.UsageLimit, d.UsageCount,
		d.Active, formatTime(d.CreatedAt),
	)
	return err
}

// =============================================================================
// READS (pos.Store interface)
// =============================================================================

// Load returns every record. Rows come back ordered by id.
func (s *Store) Load(ctx context.Context) (pos.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap pos.Snapshot
		err  error
	)
	if snap.Products, err = loadProducts(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Variants, err = loadVariants(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Shifts, err = loadShifts(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Sales, err = loadSales(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Expenses, err = loadExpenses(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Returns, err = loadReturns(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Customers, err = loadCustomers(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	if snap.Discounts, err = loadDiscounts(ctx, s.db); err != nil {
		return pos.Snapshot{}, err
	}
	return snap, nil
}

// queryRows runs query and calls scan for every row.
func queryRows(ctx context.Context, db *sql.DB, what, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s: %w", what, err)
		}
	}
	return rows.Err()
}

func loadProducts(ctx context.Context, db *sql.DB) ([]pos.Product, error) {
	var out []pos.Product
	err := queryRows(ctx, db, "products", `
		SELECT id, name, description, category, attributes_json, base_price
		FROM products ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			p                     pos.Product
			description, category sql.NullString
			attrs                 sql.NullString
			basePrice             string
		)
		if err := rows.Scan(&p.ID, &p.Name, &description, &category, &attrs, &basePrice); err != nil {
			return err
		}
		p.Description = description.String
		p.Category = category.String
		p.BasePrice = parseDecimal(basePrice)
		unmarshalJSON(attrs, &p.Attributes)
		out = append(out, p)
		return nil
	})
	return out, err
}

func loadVariants(ctx context.Context, db *sql.DB) ([]pos.Variant, error) {
	var out []pos.Variant
	err := queryRows(ctx, db, "variants", `
		SELECT id, product_id, sku, barcode, price, stock, attribute_summary, attribute_values_json
		FROM variants ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			v                     pos.Variant
			sku, barcode, summary sql.NullString
			values                sql.NullString
			price                 string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &sku, &barcode, &price, &v.Stock, &summary, &values); err != nil {
			return err
		}
		v.SKU = sku.String
		v.Barcode = barcode.String
		v.Price = parseDecimal(price)
		v.AttributeSummary = summary.String
		unmarshalJSON(values, &v.AttributeValues)
		out = append(out, v)
		return nil
	})
	return out, err
}

func loadShifts(ctx context.Context, db *sql.DB) ([]pos.Shift, error) {
	var out []pos.Shift
	err := queryRows(ctx, db, "shifts", `
		SELECT id, opened_at, closed_at, start_cash, end_cash_expected, end_cash_actual,
		       status, opened_by_id, opened_by_name, closed_by_id, closed_by_name
		FROM shifts ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			sh                       pos.Shift
			openedAt                 string
			closedAt, actual         sql.NullString
			startCash, expected      string
			openedByName             sql.NullString
			closedByID, closedByName sql.NullString
		)
		err := rows.Scan(&sh.ID, &openedAt, &closedAt, &startCash, &expected, &actual,
			&sh.Status, &sh.OpenedBy.ID, &openedByName, &closedByID, &closedByName)
		if err != nil {
			return err
		}
		sh.OpenedAt = parseTime(openedAt)
		sh.StartCash = parseDecimal(startCash)
		sh.EndCashExpected = parseDecimal(expected)
		sh.OpenedBy.Name = openedByName.String
		if closedAt.Valid {
			t := parseTime(closedAt.String)
			sh.ClosedAt = &t
		}
		if actual.Valid {
			d := parseDecimal(actual.String)
			sh.EndCashActual = &d
		}
		if closedByID.Valid {
			sh.ClosedBy = &pos.UserRef{ID: pos.UserID(closedByID.String), Name: closedByName.String}
		}
		out = append(out, sh)
		return nil
	})
	return out, err
}

func loadSales(ctx context.Context, db *sql.DB) ([]pos.Sale, error) {
	var out []pos.Sale
	err := queryRows(ctx, db, "sales", `
		SELECT id, timestamp, total, items_json, payment_method, shift_id, user_id, user_name
		FROM sales ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			sa                pos.Sale
			timestamp, total  string
			items             sql.NullString
			shiftID, userName sql.NullString
		)
		err := rows.Scan(&sa.ID, &timestamp, &total, &items, &sa.PaymentMethod, &shiftID, &sa.User.ID, &userName)
		if err != nil {
			return err
		}
		sa.Timestamp = parseTime(timestamp)
		sa.Total = parseDecimal(total)
		sa.ShiftID = pos.ShiftID(shiftID.String)
		sa.User.Name = userName.String
		unmarshalJSON(items, &sa.Items)
		out = append(out, sa)
		return nil
	})
	return out, err
}

func loadExpenses(ctx context.Context, db *sql.DB) ([]pos.Expense, error) {
	var out []pos.Expense
	err := queryRows(ctx, db, "expenses", `
		SELECT id, shift_id, amount, category, description, timestamp, user_id, user_name
		FROM expenses ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			e                     pos.Expense
			amount, timestamp     string
			description, userName sql.NullString
		)
		err := rows.Scan(&e.ID, &e.ShiftID, &amount, &e.Category, &description, &timestamp, &e.User.ID, &userName)
		if err != nil {
			return err
		}
		e.Amount = parseDecimal(amount)
		e.Description = description.String
		e.Timestamp = parseTime(timestamp)
		e.User.Name = userName.String
		out = append(out, e)
		return nil
	})
	return out, err
}

func loadReturns(ctx context.Context, db *sql.DB) ([]pos.Return, error) {
	var out []pos.Return
	err := queryRows(ctx, db, "returns", `
		SELECT id, sale_id, items_json, reason, refund_amount, refund_method, status, notes,
		       shift_id, timestamp, user_id, user_name, processed_by_id, processed_by_name
		FROM returns ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			r                              pos.Return
			items, reason, notes           sql.NullString
			refund, timestamp              string
			shiftID, userName              sql.NullString
			processedByID, processedByName sql.NullString
		)
		err := rows.Scan(&r.ID, &r.SaleID, &items, &reason, &refund, &r.RefundMethod, &r.Status, &notes,
			&shiftID, &timestamp, &r.User.ID, &userName, &processedByID, &processedByName)
		if err != nil {
			return err
		}
		unmarshalJSON(items, &r.Items)
		r.Reason = reason.String
		r.RefundAmount = parseDecimal(refund)
		r.Notes = notes.String
		r.ShiftID = pos.ShiftID(shiftID.String)
		r.Timestamp = parseTime(timestamp)
		r.User.Name = userName.String
		if processedByID.Valid {
			r.ProcessedBy = &pos.UserRef{ID: pos.UserID(processedByID.String), Name: processedByName.String}
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func loadCustomers(ctx context.Context, db *sql.DB) ([]pos.Customer, error) {
	var out []pos.Customer
	err := queryRows(ctx, db, "customers", `
		SELECT id, name, email, phone, address, notes, total_purchases, total_spent, created_at, last_purchase_at
		FROM customers ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			c                            pos.Customer
			email, phone, address, notes sql.NullString
			spent, createdAt             string
			lastPurchase                 sql.NullString
		)
		err := rows.Scan(&c.ID, &c.Name, &email, &phone, &address, &notes, &c.TotalPurchases, &spent, &createdAt, &lastPurchase)
		if err != nil {
			return err
		}
		c.Email = email.String
		c.Phone = phone.String
		c.Address = address.String
		c.Notes = notes.String
		c.TotalSpent = parseDecimal(spent)
		c.CreatedAt = parseTime(createdAt)
		if lastPurchase.Valid {
			t := parseTime(lastPurchase.String)
			c.LastPurchaseAt = &t
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func loadDiscounts(ctx context.Context, db *sql.DB) ([]pos.Discount, error) {
	var out []pos.Discount
	err := queryRows(ctx, db, "discounts", `
		SELECT id, name, type, value, scope, product_ids_json, category_names_json, coupon_code,
		       min_purchase, max_discount, valid_from, valid_until, usage_limit, usage_count, active, created_at
		FROM discounts ORDER BY id
	`, func(rows *sql.Rows) error {
		var (
			d                               pos.Discount
			value, minPurchase, maxDiscount string
			productIDs, categories, coupon  sql.NullString
			validFrom, validUntil           sql.NullString
			createdAt                       string
		)
		err := rows.Scan(&d.ID, &d.Name, &d.Type, &value, &d.Scope, &productIDs, &categories, &coupon,
			&minPurchase, &maxDiscount, &validFrom, &validUntil, &d.UsageLimit, &d.UsageCount, &d.Active, &createdAt)
		if err != nil {
			return err
		}
		d.Value = parseDecimal(value)
		unmarshalJSON(productIDs, &d.ProductIDs)
		unmarshalJSON(categories, &d.CategoryNames)
		d.CouponCode = coupon.String
		d.MinPurchase = parseDecimal(minPurchase)
		d.MaxDiscount = parseDecimal(maxDiscount)
		if validFrom.Valid {
			t := parseTime(validFrom.String)
			d.ValidFrom = &t
		}
		if validUntil.Valid {
			t := parseTime(validUntil.String)
			d.ValidUntil = &t
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
		return nil
	})
	return out, err
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears every table.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range pos.Kinds {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+tables[k]); err != nil {
			return fmt.Errorf("failed to reset %s: %w", k, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func unmarshalJSON(s sql.NullString, v any) {
	if s.Valid && s.String != "" && s.String != "null" {
		json.Unmarshal([]byte(s.String), v)
	}
}
