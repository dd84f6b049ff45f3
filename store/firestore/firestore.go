/*
Package firestore provides a cloud document store on Google Cloud Firestore.

PURPOSE:
  Tills on different devices share one Firestore project. Each entity is a
  document in the collection named after its kind (products, variants,
  shifts, sales, expenses, returns, customers, discounts), with the entity
  id as document id.

ENCODING:
  Documents carry the entity's JSON field names (camelCase). Money is a
  decimal string and times are RFC3339 strings, so values round-trip
  exactly and stay readable in the console.

WRITES:
  Apply() runs up to maxWrites changes per Firestore transaction. Each
  write replaces the whole document.

AUTH:
  Application default credentials, or a service account file. Set
  FIRESTORE_EMULATOR_HOST to talk to the local emulator.
*/
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/warp/cashdrawer/pos"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// maxWrites is Firestore's per-transaction write limit.
const maxWrites = 500

type Config struct {
	ProjectID       string
	CredentialsFile string
	// Prefix is prepended to every collection name, e.g. "store1_".
	Prefix string
}

type Store struct {
	client *firestore.Client
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(k pos.Kind) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + string(k))
}

// Apply writes changes in order, maxWrites per transaction.
func (s *Store) Apply(ctx context.Context, changes ...pos.Change) error {
	for start := 0; start < len(changes); start += maxWrites {
		end := min(start+maxWrites, len(changes))
		if err := s.applyChunk(ctx, changes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyChunk(ctx context.Context, changes []pos.Change) error {
	docs := make([]map[string]any, len(changes))
	for i, c := range changes {
		if !known(c.Kind) {
			return fmt.Errorf("unknown collection %q", c.Kind)
		}
		if c.Op == pos.OpDelete {
			continue
		}
		doc, err := toDocument(c.Entity)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", c.Kind, c.ID, err)
		}
		docs[i] = doc
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, c := range changes {
			ref := s.collection(c.Kind).Doc(c.ID)
			var err error
			if c.Op == pos.OpDelete {
				err = tx.Delete(ref)
			} else {
				err = tx.Set(ref, docs[i])
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", c.Kind, c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write changes: %w", err)
	}
	return nil
}

// Load reads every collection, each ordered by document id.
func (s *Store) Load(ctx context.Context) (pos.Snapshot, error) {
	var snap pos.Snapshot
	if err := loadKind(ctx, s, pos.KindProduct, &snap.Products); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindVariant, &snap.Variants); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindShift, &snap.Shifts); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindSale, &snap.Sales); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindExpense, &snap.Expenses); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindReturn, &snap.Returns); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindCustomer, &snap.Customers); err != nil {
		return pos.Snapshot{}, err
	}
	if err := loadKind(ctx, s, pos.KindDiscount, &snap.Discounts); err != nil {
		return pos.Snapshot{}, err
	}
	return snap, nil
}

func loadKind[T any](ctx context.Context, s *Store, k pos.Kind, out *[]T) error {
	iter := s.collection(k).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", k, err)
		}
		var v T
		if err := fromDocument(doc.Data(), &v); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", k, doc.Ref.ID, err)
		}
		*out = append(*out, v)
	}
}

// Reset deletes every document. Meant for tests against the emulator.
func (s *Store) Reset(ctx context.Context) error {
	bw := s.client.BulkWriter(ctx)
	for _, k := range pos.Kinds {
		refs, err := s.collection(k).DocumentRefs(ctx).GetAll()
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", k, err)
		}
		for _, ref := range refs {
			if _, err := bw.Delete(ref); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", k, ref.ID, err)
			}
		}
	}
	bw.End()
	return nil
}

func toDocument(entity any) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocument(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func known(k pos.Kind) bool {
	for _, kind := range pos.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}
