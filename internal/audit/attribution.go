package audit

import "alpha-auditor/internal/models"

// CategoryLookup resolves a producer's capability category.
type CategoryLookup interface {
	CategoryOf(id string) (models.Category, bool)
}

// DefaultNormalThreshold is the accuracy above which an outcome is normal.
const DefaultNormalThreshold = 0.7

var recommendations = map[models.FailureType]string{
	models.FailureNormal:        "All producers performed within expectations",
	models.FailureTechnical:     "Technical producers should re-examine indicator validity",
	models.FailureFundamental:   "Fundamental producers should strengthen earnings forecasts",
	models.FailureInstitutional: "Institutional producers should refresh holdings data sources",
	models.FailureMacro:         "Macro producers should rebalance how macro factors are weighed",
}

// Attributor classifies low-accuracy outcomes.
//
// The root-cause choice is a fixed heuristic: a wrong direction blames the
// technical category and a wrong magnitude blames the fundamental category.
// It does not inspect which producer dissented.
type Attributor struct {
	categories      CategoryLookup
	normalThreshold float64
}

// NewAttributor creates an attributor backed by a category table.
func NewAttributor(categories CategoryLookup, normalThreshold float64) *Attributor {
	return &Attributor{categories: categories, normalThreshold: normalThreshold}
}

// Attribute names the failure category and a probable responsible producer.
func (a *Attributor) Attribute(opinions []models.Opinion, accuracy float64) models.Attribution {
	if accuracy > a.normalThreshold {
		return models.Attribution{
			FailureType:    models.FailureNormal,
			Recommendation: recommendations[models.FailureNormal],
		}
	}

	buckets := make(map[models.Category][]string)
	for _, o := range opinions {
		if cat, ok := a.categories.CategoryOf(o.ProducerID); ok {
			buckets[cat] = append(buckets[cat], o.ProducerID)
		}
	}

	primary := models.FailureFundamental
	if accuracy == 0 {
		primary = models.FailureTechnical
	}

	attr := models.Attribution{
		FailureType:    primary,
		Recommendation: recommendations[primary],
	}
	if ids := buckets[primary]; len(ids) > 0 {
		attr.ResponsibleProducer = ids[0]
	}
	return attr
}
