package lexidx

import (
	"github.com/lexidx/lexidx/internal/settings"
	"github.com/lexidx/lexidx/internal/writer"
)

// SettingsProgressFunc reports re-extraction progress when a layout-
// affecting setting change schedules one; see settings.ProgressFunc.
type SettingsProgressFunc = settings.ProgressFunc

// Settings accumulates setter/resetter calls against the index's
// configuration and applies them atomically on Execute.
type Settings struct {
	idx     *Index
	txn     *Txn
	handle  *updateHandle
	applier *settings.Applier
	err     error
}

// ID identifies this operation for AbortUpdate/UpdateStatus.
func (s *Settings) ID() uint64 { return s.handle.id }

// NewSettings registers a settings-update operation against txn, seeded
// with the index's current configuration.
func (idx *Index) NewSettings(txn *Txn) *Settings {
	fields, err := writer.LoadFieldsMap(txn)
	if err != nil {
		return &Settings{idx: idx, txn: txn, handle: idx.updates.register(), err: err}
	}
	applier, err := settings.New(txn, fields)
	if err != nil {
		return &Settings{idx: idx, txn: txn, handle: idx.updates.register(), err: err}
	}
	return &Settings{idx: idx, txn: txn, handle: idx.updates.register(), applier: applier}
}

func (s *Settings) SetPrimaryKey(name string) *Settings {
	if s.applier != nil {
		s.applier.SetPrimaryKey(name)
	}
	return s
}
func (s *Settings) ResetPrimaryKey() *Settings {
	if s.applier != nil {
		s.applier.ResetPrimaryKey()
	}
	return s
}

func (s *Settings) SetSearchableFields(names []string) *Settings {
	if s.applier != nil {
		s.applier.SetSearchableFields(names)
	}
	return s
}
func (s *Settings) ResetSearchableFields() *Settings {
	if s.applier != nil {
		s.applier.ResetSearchableFields()
	}
	return s
}

func (s *Settings) SetDisplayedFields(names []string) *Settings {
	if s.applier != nil {
		s.applier.SetDisplayedFields(names)
	}
	return s
}
func (s *Settings) ResetDisplayedFields() *Settings {
	if s.applier != nil {
		s.applier.ResetDisplayedFields()
	}
	return s
}

func (s *Settings) SetFilterableFields(names []string) *Settings {
	if s.applier != nil {
		s.applier.SetFilterableFields(names)
	}
	return s
}
func (s *Settings) ResetFilterableFields() *Settings {
	if s.applier != nil {
		s.applier.ResetFilterableFields()
	}
	return s
}

func (s *Settings) SetSortableFields(names []string) *Settings {
	if s.applier != nil {
		s.applier.SetSortableFields(names)
	}
	return s
}
func (s *Settings) ResetSortableFields() *Settings {
	if s.applier != nil {
		s.applier.ResetSortableFields()
	}
	return s
}

func (s *Settings) SetCriteria(criteria []string) *Settings {
	if s.applier != nil {
		s.applier.SetCriteria(criteria)
	}
	return s
}
func (s *Settings) ResetCriteria() *Settings {
	if s.applier != nil {
		s.applier.ResetCriteria()
	}
	return s
}

func (s *Settings) SetSynonyms(synonyms map[string][]string) *Settings {
	if s.applier != nil {
		s.applier.SetSynonyms(synonyms)
	}
	return s
}
func (s *Settings) ResetSynonyms() *Settings {
	if s.applier != nil {
		s.applier.ResetSynonyms()
	}
	return s
}

func (s *Settings) SetStopWords(words []string) *Settings {
	if s.applier != nil {
		s.applier.SetStopWords(words)
	}
	return s
}
func (s *Settings) ResetStopWords() *Settings {
	if s.applier != nil {
		s.applier.ResetStopWords()
	}
	return s
}

func (s *Settings) SetDistinctField(name string) *Settings {
	if s.applier != nil {
		s.applier.SetDistinctField(name)
	}
	return s
}
func (s *Settings) ResetDistinctField() *Settings {
	if s.applier != nil {
		s.applier.ResetDistinctField()
	}
	return s
}

// Execute validates and persists the accumulated changes, replaying
// extraction over every stored document when the change affects how
// documents are indexed.
func (s *Settings) Execute(progress SettingsProgressFunc) error {
	id := s.handle.id
	s.idx.updates.setState(id, UpdateProcessing)

	if s.err != nil {
		s.idx.updates.setState(id, UpdateFailed)
		return s.err
	}
	if err := s.applier.Execute(progress); err != nil {
		s.idx.updates.setState(id, UpdateFailed)
		return err
	}

	s.idx.touch()
	s.idx.updates.setState(id, UpdateProcessed)
	return nil
}
