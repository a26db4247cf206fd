// Package notes records the mapping between foreign and native object ids
// in a badger key-value store, one key namespace per table.
package notes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Table names a note namespace.
type Table string

const (
	// Changeset maps changeset ids to native commits.
	Changeset Table = "changeset"
	// Manifest maps manifest ids to native manifest commits.
	Manifest Table = "manifest"
	// File maps file ids to content blobs.
	File Table = "file"
	// FileMeta maps file ids to their metadata blobs.
	FileMeta Table = "filemeta"
	// Git2Hg maps native commits to changeset metadata blobs.
	Git2Hg Table = "git2hg"
	// Replace maps a replaced native commit to its replacement.
	Replace Table = "replace"
)

// Tables lists every table in dump order.
var Tables = []Table{Changeset, Manifest, File, FileMeta, Git2Hg, Replace}

func validTable(t Table) bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

func key(t Table, k string) []byte {
	return []byte(string(t) + ":" + k)
}

// Store is a note database.
type Store struct {
	db *badger.DB
}

// Open opens or creates the note database in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a note database that lives only in memory.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set records value for k in table t, replacing any previous value.
func (s *Store) Set(t Table, k, value string) error {
	if !validTable(t) {
		return fmt.Errorf("notes: unknown table %q", t)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(t, k), []byte(value))
	})
}

// Delete removes k from table t. Deleting a missing key is not an error.
func (s *Store) Delete(t Table, k string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(t, k))
	})
}

// Get returns the value for k in table t.
func (s *Store) Get(t Table, k string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(t, k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("notes get %s %s: %w", t, k, err)
	}
	return value, true, nil
}

// Each calls fn for every entry of table t in key order. A non-nil error
// from fn stops the walk and is returned.
func (s *Store) Each(t Table, fn func(k, value string) error) error {
	prefix := key(t, "")
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := string(item.Key()[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(k, string(val)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of entries in table t.
func (s *Store) Count(t Table) (int, error) {
	n := 0
	err := s.Each(t, func(string, string) error {
		n++
		return nil
	})
	return n, err
}

// ---------------------------------------------------------------------------
// Dump / Load
// ---------------------------------------------------------------------------

// Dump serializes every table as "table key value" lines, tables in
// Tables order and keys ascending.
func (s *Store) Dump() ([]byte, error) {
	var buf bytes.Buffer
	for _, t := range Tables {
		err := s.Each(t, func(k, value string) error {
			fmt.Fprintf(&buf, "%s %s %s\n", t, k, value)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("notes dump: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Load replaces the whole database with the entries of a dump.
func (s *Store) Load(data []byte) error {
	type entry struct {
		t    Table
		k, v string
	}
	var entries []entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || !validTable(Table(fields[0])) {
			return fmt.Errorf("notes load: malformed line %q", line)
		}
		entries = append(entries, entry{Table(fields[0]), fields[1], fields[2]})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("notes load: %w", err)
	}

	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("notes load: %w", err)
	}
	wb := s.db.NewWriteBatch()
	for _, e := range entries {
		if err := wb.Set(key(e.t, e.k), []byte(e.v)); err != nil {
			wb.Cancel()
			return fmt.Errorf("notes load: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("notes load: %w", err)
	}
	return nil
}
