package writer

import (
	"github.com/bytedance/sonic"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// SaveFieldsMap persists the field-id map's serialised blob in the main
// database, rewritten atomically whenever a new field name was assigned
// this commit; it lives in the main database rather than its own because
// it is rewritten wholesale on every structural change.
func SaveFieldsMap(txn *badger.Txn, fields *fieldmap.FieldsMap) error {
	blob, err := fields.Marshal()
	if err != nil {
		return err
	}
	return txn.Put(badger.DBMain, codec.MainFieldsMapKey(), blob)
}

// LoadFieldsMap reads the field-id map back out, returning an empty one
// if the index has never stored one yet.
func LoadFieldsMap(txn *badger.Txn) (*fieldmap.FieldsMap, error) {
	blob, err := txn.Get(badger.DBMain, codec.MainFieldsMapKey())
	if err != nil {
		return nil, err
	}
	return fieldmap.Unmarshal(blob)
}

// SaveExternalIDs persists the external-ids FST and soft-deleted bitmap.
func SaveExternalIDs(txn *badger.Txn, ext *fieldmap.ExternalDocumentsIds) error {
	fstBytes, deletedBytes, err := ext.Bytes()
	if err != nil {
		return err
	}
	if err := txn.Put(badger.DBMain, codec.MainExternalIDsFSTKey(), fstBytes); err != nil {
		return err
	}
	return txn.Put(badger.DBMain, codec.MainSoftDeletedBitmapKey(), deletedBytes)
}

// LoadExternalIDs reads the external-ids mapping back out.
func LoadExternalIDs(txn *badger.Txn) (*fieldmap.ExternalDocumentsIds, error) {
	fstBytes, err := txn.Get(badger.DBMain, codec.MainExternalIDsFSTKey())
	if err != nil {
		return nil, err
	}
	deletedBytes, err := txn.Get(badger.DBMain, codec.MainSoftDeletedBitmapKey())
	if err != nil {
		return nil, err
	}
	return fieldmap.Load(fstBytes, deletedBytes)
}

// LoadOrNewExternalIDs is LoadExternalIDs, returning a fresh empty mapping
// instead of propagating a "not found" condition for a brand new index.
func LoadOrNewExternalIDs(txn *badger.Txn) (*fieldmap.ExternalDocumentsIds, error) {
	ids, err := LoadExternalIDs(txn)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// fieldDistributionWire is the field-distribution map's persisted form.
type fieldDistributionWire struct {
	Counts map[string]int `json:"counts"`
}

// SaveFieldDistribution persists the "field name -> document count" map.
func SaveFieldDistribution(txn *badger.Txn, dist map[string]int) error {
	blob, err := sonic.Marshal(fieldDistributionWire{Counts: dist})
	if err != nil {
		return common.NewInternalError(common.ErrSerdeJSON, err, "failed to encode field distribution")
	}
	return txn.Put(badger.DBMain, codec.MainFieldDistributionKey(), blob)
}

// LoadFieldDistribution reads the field distribution map back out,
// returning an empty map for a fresh index.
func LoadFieldDistribution(txn *badger.Txn) (map[string]int, error) {
	blob, err := txn.Get(badger.DBMain, codec.MainFieldDistributionKey())
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return map[string]int{}, nil
	}
	var wire fieldDistributionWire
	if err := sonic.Unmarshal(blob, &wire); err != nil {
		return nil, common.NewInternalError(common.ErrSerdeJSON, err, "failed to decode field distribution")
	}
	if wire.Counts == nil {
		wire.Counts = map[string]int{}
	}
	return wire.Counts, nil
}

// MergeFieldDistribution adds delta's counts into the persisted
// distribution and saves the result.
func MergeFieldDistribution(txn *badger.Txn, delta map[string]int) error {
	current, err := LoadFieldDistribution(txn)
	if err != nil {
		return err
	}
	for k, v := range delta {
		current[k] += v
		if current[k] <= 0 {
			delete(current, k)
		}
	}
	return SaveFieldDistribution(txn, current)
}

// SavePrimaryKey / LoadPrimaryKey persist the index's resolved primary
// key field name, enforced immutable once set.
func SavePrimaryKey(txn *badger.Txn, name string) error {
	return txn.Put(badger.DBMain, codec.MainPrimaryKeyKey(), []byte(name))
}

func LoadPrimaryKey(txn *badger.Txn) (string, error) {
	blob, err := txn.Get(badger.DBMain, codec.MainPrimaryKeyKey())
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// SaveSettingsBlob / LoadSettingsBlob persist the settings singleton's
// already-encoded form; internal/settings owns the encoding, this package
// only owns where it lives in DB 1.
func SaveSettingsBlob(txn *badger.Txn, blob []byte) error {
	return txn.Put(badger.DBMain, codec.MainSettingsKey(), blob)
}

func LoadSettingsBlob(txn *badger.Txn) ([]byte, error) {
	return txn.Get(badger.DBMain, codec.MainSettingsKey())
}

// SaveDocumentsIDsBitmap / LoadDocumentsIDsBitmap persist the set of
// internal docids currently live in the index.
func SaveDocumentsIDsBitmap(txn *badger.Txn, encoded []byte) error {
	return txn.Put(badger.DBMain, codec.MainDocumentsIDsBitmapKey(), encoded)
}

func LoadDocumentsIDsBitmap(txn *badger.Txn) ([]byte, error) {
	return txn.Get(badger.DBMain, codec.MainDocumentsIDsBitmapKey())
}

// PutDocument writes one document's original-form OBKV into DB 14.
func PutDocument(txn *badger.Txn, docid uint32, obkv []byte) error {
	return txn.Put(badger.DBDocuments, codec.DocidKey(docid), obkv)
}

// GetDocument reads one document's original-form OBKV back out of DB 14.
func GetDocument(txn *badger.Txn, docid uint32) ([]byte, error) {
	return txn.Get(badger.DBDocuments, codec.DocidKey(docid))
}
