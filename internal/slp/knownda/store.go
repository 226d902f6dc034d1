package knownda

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix DA 记录的键前缀，后接小写 URL
const keyPrefix = "knownda/"

// store 以 BadgerDB 保存原始 DAAdvert 报文
type store struct {
	db *badger.DB
}

func openStore(path string) (*store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

func storeKey(url string) []byte {
	return []byte(keyPrefix + strings.ToLower(url))
}

func (s *store) put(url string, raw []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(url), raw)
	})
}

func (s *store) delete(url string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(url))
	})
}

// load 返回全部记录，按键排序
func (s *store) load() ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

func (s *store) close() error {
	return s.db.Close()
}
