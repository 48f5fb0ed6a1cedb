package criteria

import (
	"strings"

	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

// ChainOptions configures Build. Criteria lists the criterion order as
// configured names: "words", "typo", "proximity", "attribute",
// "exactness", or "asc(field)"/"desc(field)" for a sort criterion on a
// settings-defined sortable field. DistinctField names the field (if
// any) the trailing Final stage should deduplicate by.
type ChainOptions struct {
	Criteria      []string
	DistinctField string
}

// Build assembles the ordered stage list Run expects from cfg, resolving
// every named field through fields, and always appends a Final stage
// last (a pass-through if cfg.DistinctField is empty).
func Build(cfg ChainOptions, fields *fieldmap.FieldsMap) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfg.Criteria)+1)
	for _, name := range cfg.Criteria {
		stage, err := buildStage(name, fields)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	var finalField uint16
	var hasDistinct bool
	if cfg.DistinctField != "" {
		id, ok := fields.Lookup(cfg.DistinctField)
		if !ok {
			return nil, common.NewUserError(common.ErrAttributeNotFilterable, "distinct field %q is not known", cfg.DistinctField)
		}
		finalField = id
		hasDistinct = true
	}
	stages = append(stages, NewFinal(finalField, hasDistinct))
	return stages, nil
}

func buildStage(name string, fields *fieldmap.FieldsMap) (Stage, error) {
	switch {
	case name == "words":
		return Words{}, nil
	case name == "typo":
		return Typo{}, nil
	case name == "proximity":
		return Proximity{}, nil
	case name == "attribute":
		return Attribute{}, nil
	case name == "exactness":
		return Exactness{}, nil
	case strings.HasPrefix(name, "asc(") && strings.HasSuffix(name, ")"):
		return buildSort(name[len("asc(") :len(name)-1], false, fields)
	case strings.HasPrefix(name, "desc(") && strings.HasSuffix(name, ")"):
		return buildSort(name[len("desc("):len(name)-1], true, fields)
	default:
		return nil, common.NewUserError(common.ErrCriterionError, "unknown criterion %q", name)
	}
}

func buildSort(fieldName string, descending bool, fields *fieldmap.FieldsMap) (Stage, error) {
	id, ok := fields.Lookup(fieldName)
	if !ok {
		return nil, common.NewUserError(common.ErrAttributeNotSortable, "sort field %q is not known", fieldName)
	}
	return Sort{FieldID: id, Descending: descending}, nil
}
