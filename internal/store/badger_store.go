package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// Key layout. Every statement is written under two keys holding the same
// encoded record:
//
//	spo\x00<s>\x00<p>\x00<o>\x00<g>   lookups by subject
//	pos\x00<p>\x00<o>\x00<s>\x00<g>   lookups by predicate and object
const (
	prefixSPO = "spo\x00"
	prefixPOS = "pos\x00"
	sep       = "\x00"
)

// BadgerStore keeps statements in a Badger key-value database.
type BadgerStore struct {
	db  *badger.DB
	log *zap.Logger
}

// NewBadgerStore opens (or creates) a database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil)) // Suppress Badger logger
}

// NewInMemoryBadgerStore opens a database that lives only in memory.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, log: zap.NewNop()}, nil
}

// WithLogger sets the logger and returns s.
func (s *BadgerStore) WithLogger(log *zap.Logger) *BadgerStore {
	s.log = log
	return s
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Fetch implements graph.TripleStore.
func (s *BadgerStore) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	return fetch(ctx, s, ids)
}

// Select implements graph.TripleStore.
func (s *BadgerStore) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	return evaluate(ctx, s, q)
}

// Modify applies edits in one transaction.
func (s *BadgerStore) Modify(ctx context.Context, edits []change.StoreEdit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range edits {
			if e.Statement.Subject == nil || e.Statement.Object == nil {
				return errIncomplete(e)
			}
			spo, pos := statementKeys(e.Statement)
			if e.Kind == change.EditRemoved {
				if err := txn.Delete(spo); err != nil {
					return err
				}
				if err := txn.Delete(pos); err != nil {
					return err
				}
				continue
			}

			val, err := encodeQuad(e.Statement)
			if err != nil {
				return err
			}
			if err := txn.Set(spo, val); err != nil {
				return err
			}
			if err := txn.Set(pos, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger update: %w", err)
	}
	s.log.Debug("badger modified", zap.Int("edits", len(edits)))
	return nil
}

func statementKeys(q term.Quad) (spo, pos []byte) {
	sk, p, ob, g := key(q.Subject), string(q.Predicate), key(q.Object), string(q.Graph)
	spo = []byte(prefixSPO + sk + sep + p + sep + ob + sep + g)
	pos = []byte(prefixPOS + p + sep + ob + sep + sk + sep + g)
	return spo, pos
}

// scanPrefix picks the narrowest key prefix for the bound positions.
func scanPrefix(subj, pred, obj term.Term) []byte {
	var b bytes.Buffer
	switch {
	case subj != nil:
		b.WriteString(prefixSPO + key(subj) + sep)
		if pred != nil {
			b.WriteString(predicateName(pred) + sep)
			if obj != nil {
				b.WriteString(key(obj) + sep)
			}
		}
	case pred != nil:
		b.WriteString(prefixPOS + predicateName(pred) + sep)
		if obj != nil {
			b.WriteString(key(obj) + sep)
		}
	default:
		b.WriteString(prefixSPO)
	}
	return b.Bytes()
}

func (s *BadgerStore) match(ctx context.Context, subj, pred, obj term.Term) ([]term.Quad, error) {
	prefix := scanPrefix(subj, pred, obj)

	var out []term.Quad
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				q, err := decodeQuad(val)
				if err != nil {
					return err
				}
				if (subj == nil || key(q.Subject) == key(subj)) &&
					(pred == nil || string(q.Predicate) == predicateName(pred)) &&
					(obj == nil || key(q.Object) == key(obj)) {
					out = append(out, q)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan: %w", err)
	}
	return out, nil
}
