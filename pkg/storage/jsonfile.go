package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// JSONFile keeps the Database in a single indented JSON document:
//
//	{"inet": {"ASUS ... RTX 5090": {"price": "35 990 kr", "first_seen": 1717171717.5}}}
type JSONFile struct {
	path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (f *JSONFile) Path() string { return f.path }

func (f *JSONFile) Load(ctx context.Context) (Database, error) {
	if err := ctx.Err(); err != nil {
		return Database{}, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Database{}, nil
		}
		return Database{}, fmt.Errorf("read snapshot %s: %w", f.path, err)
	}
	return decodeDatabase(data)
}

func decodeDatabase(data []byte) (Database, error) {
	if !gjson.ValidBytes(data) {
		return Database{}, fmt.Errorf("%w: invalid JSON", ErrCorrupt)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Database{}, fmt.Errorf("%w: top level is not an object", ErrCorrupt)
	}

	db := Database{}
	root.ForEach(func(store, listings gjson.Result) bool {
		snap := StoreSnapshot{}
		if listings.IsObject() {
			listings.ForEach(func(title, rec gjson.Result) bool {
				snap[title.String()] = decodeRecord(rec)
				return true
			})
		}
		db[store.String()] = snap
		return true
	})
	return db, nil
}

func (f *JSONFile) Save(ctx context.Context, db Database) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db == nil {
		db = Database{}
	}
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return writeFileAtomic(f.path, append(data, '\n'), 0o644)
}

// writeFileAtomic writes to a temp file next to path and renames it over
// path, so readers only ever see a complete document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	return nil
}
