package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/epiwatch/casestore/internal/domain/caserecord"
	"github.com/epiwatch/casestore/internal/domain/filter"
)

// filterToBSON translates the filter algebra into a native query with
// the same matching semantics as in-memory evaluation.
func filterToBSON(f filter.Filter) bson.M {
	switch v := f.(type) {
	case filter.Anything:
		return bson.M{}
	case filter.Property:
		return bson.M{v.Path: bson.M{opToMongo(v.Op): v.Value}}
	case filter.And:
		if len(v.Filters) == 0 {
			return bson.M{}
		}
		subs := make([]bson.M, 0, len(v.Filters))
		for _, sub := range v.Filters {
			subs = append(subs, filterToBSON(sub))
		}
		return bson.M{"$and": subs}
	default:
		return bson.M{}
	}
}

func opToMongo(op filter.Op) string {
	switch op {
	case filter.Less:
		return "$lt"
	case filter.Greater:
		return "$gt"
	default:
		return "$eq"
	}
}

// caseFromBSON hydrates a case from a decoded document, normalizing
// driver-native types back to the domain's plain Go values.
func caseFromBSON(raw bson.M) *caserecord.Case {
	id := ""
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		id = oid.Hex()
	}
	doc, _ := normalize(map[string]any(raw)).(map[string]any)
	delete(doc, "_id")
	return caserecord.FromStoredMap(id, doc)
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(map[string]any(t))
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		m := map[string]any{}
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
