/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the till server. Handles configuration, store
  selection, startup load, replication and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the durable store (sqlite, postgres, firestore or memory)
  3. Subscribe the replication worker to catalog, ledger, customer and
     discount changes
  4. Load the full snapshot into every container (repair runs)
  5. Start the worker and the snapshot poller
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -port               HTTP server port (default: 8080)
  -store              sqlite | postgres | firestore | memory (default: sqlite)
  -db                 SQLite database path (default: cashdrawer.db)
                      Use ":memory:" for in-memory database
  -postgres-dsn       PostgreSQL connection string
  -firestore-project  Google Cloud project id
  -firestore-creds    Service account file (default: application credentials)
  -firestore-prefix   Collection name prefix
  -poll               Snapshot poll interval, 0 disables (default: 30s)
  -queue              Replication buffer size (default: 1024)
  -currency           Display currency code (default: PEN)
  -expense-policy     cap | allow (default: cap)
  -close-policy       coerce | strict (default: coerce)
  -users              JSON user directory file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the poller
  4. Drain the replication queue into the store
  5. Close the store

ENVIRONMENT:
  POS_ADMIN_PASSWORD  Password of the seeded admin when -users is not set;
                      a random one is generated and logged when unset

EXAMPLES:
  # Local till with a file database
  ./server -db="./data/till.db"

  # Shared store for several tills
  ./server -store=postgres -postgres-dsn="host=db user=pos dbname=pos sslmode=disable"

  # Firestore emulator
  FIRESTORE_EMULATOR_HOST=localhost:8081 ./server -store=firestore -firestore-project=demo

SEE ALSO:
  - api/server.go: Router configuration
  - replication/: Worker and poller
  - store/: Durable store implementations
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/cashdrawer/api"
	"github.com/warp/cashdrawer/backup"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/customer"
	"github.com/warp/cashdrawer/discount"
	"github.com/warp/cashdrawer/identity"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
	"github.com/warp/cashdrawer/pos/store"
	"github.com/warp/cashdrawer/replication"
	"github.com/warp/cashdrawer/store/firestore"
	"github.com/warp/cashdrawer/store/postgres"
	"github.com/warp/cashdrawer/store/sqlite"
)

type config struct {
	port             int
	store            string
	dbPath           string
	postgresDSN      string
	firestoreProject string
	firestoreCreds   string
	firestorePrefix  string
	poll             time.Duration
	queue            int
	currency         string
	expensePolicy    string
	closePolicy      string
	usersFile        string
}

func main() {
	// Flags
	var cfg config
	flag.IntVar(&cfg.port, "port", 8080, "HTTP server port")
	flag.StringVar(&cfg.store, "store", "sqlite", "Durable store: sqlite, postgres, firestore or memory")
	flag.StringVar(&cfg.dbPath, "db", "cashdrawer.db", "SQLite database path")
	flag.StringVar(&cfg.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	flag.StringVar(&cfg.firestoreProject, "firestore-project", "", "Google Cloud project id")
	flag.StringVar(&cfg.firestoreCreds, "firestore-creds", "", "Service account credentials file")
	flag.StringVar(&cfg.firestorePrefix, "firestore-prefix", "", "Firestore collection name prefix")
	flag.DurationVar(&cfg.poll, "poll", 30*time.Second, "Snapshot poll interval, 0 disables")
	flag.IntVar(&cfg.queue, "queue", replication.DefaultQueueSize, "Replication buffer size")
	flag.StringVar(&cfg.currency, "currency", pos.DefaultCurrency, "Display currency code")
	flag.StringVar(&cfg.expensePolicy, "expense-policy", string(ledger.ExpenseCapAtExpected), "Expense policy: cap or allow")
	flag.StringVar(&cfg.closePolicy, "close-policy", string(ledger.CloseCoerce), "Close policy: coerce or strict")
	flag.StringVar(&cfg.usersFile, "users", "", "JSON user directory file")
	flag.Parse()

	ledgerCfg, err := ledgerConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	ctx := context.Background()
	durable, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.store, err)
	}
	defer durable.Close()

	users, err := loadUsers(cfg.usersFile)
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	// In-memory state. Shifts closed by the startup repair are queued
	// before the worker starts.
	cat := catalog.New()
	led := ledger.New(cat, ledgerCfg)
	people := customer.New()
	rules := discount.New(cat)
	worker := replication.NewWorker(durable, cfg.queue)
	cat.Subscribe(worker.Enqueue)
	led.Subscribe(worker.Enqueue)
	people.Subscribe(worker.Enqueue)
	rules.Subscribe(worker.Enqueue)

	poller := replication.NewPoller(durable, cat, led, worker)
	poller.Collections = []replication.CatalogState{people, rules}
	poller.Interval = cfg.poll

	res, err := poller.Sync(ctx)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}
	log.Printf("Loaded %d records from %s store", res.Records, cfg.store)

	worker.Start()
	poller.Start()

	// Initialize handler
	handler := api.NewHandler(cat, led, users)
	handler.Customers = people
	handler.Discounts = rules
	handler.Backup = backup.New(cat, led).WithCustomers(people).WithDiscounts(rules)
	handler.Currency = cfg.currency
	handler.Worker = worker

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.port)
		log.Printf("API available at http://localhost:%d/api", cfg.port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	poller.Stop()
	worker.Shutdown()
	st := worker.Stats()
	log.Printf("Replication: %d applied, %d failed, %d dropped, %d retried", st.Applied, st.Failed, st.Dropped, st.Retried)

	log.Println("Server stopped")
}

func ledgerConfig(cfg config) (ledger.Config, error) {
	out := ledger.Config{
		ExpensePolicy: ledger.ExpensePolicy(cfg.expensePolicy),
		ClosePolicy:   ledger.ClosePolicy(cfg.closePolicy),
	}
	switch out.ExpensePolicy {
	case ledger.ExpenseCapAtExpected, ledger.ExpenseAllowOverdraft:
	default:
		return out, fmt.Errorf("unknown expense policy %q", cfg.expensePolicy)
	}
	switch out.ClosePolicy {
	case ledger.CloseCoerce, ledger.CloseStrict:
	default:
		return out, fmt.Errorf("unknown close policy %q", cfg.closePolicy)
	}
	return out, nil
}

func openStore(ctx context.Context, cfg config) (pos.Store, error) {
	switch cfg.store {
	case "sqlite":
		return sqlite.New(cfg.dbPath)
	case "postgres":
		if cfg.postgresDSN == "" {
			return nil, fmt.Errorf("-postgres-dsn is required")
		}
		return postgres.New(ctx, cfg.postgresDSN)
	case "firestore":
		return firestore.New(ctx, firestore.Config{
			ProjectID:       cfg.firestoreProject,
			CredentialsFile: cfg.firestoreCreds,
			Prefix:          cfg.firestorePrefix,
		})
	case "memory":
		log.Println("Warning: memory store, nothing survives a restart")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.store)
}

func loadUsers(path string) (*identity.Directory, error) {
	if path != "" {
		return identity.LoadDirectory(path)
	}
	d, _, err := identity.SeedAdmin(os.Getenv("POS_ADMIN_PASSWORD"))
	return d, err
}
