package gpu

import (
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// featureFields maps each boolean feature to its struct field, in declaration order.
var featureFields = func() []reflect.StructField {
	var fields []reflect.StructField
	featuresType := reflect.TypeOf(core1_0.PhysicalDeviceFeatures{})
	for i := 0; i < featuresType.NumField(); i++ {
		field := featuresType.Field(i)
		if field.Type.Kind() == reflect.Bool && field.IsExported() {
			fields = append(fields, field)
		}
	}
	return fields
}()

// MissingFeatures compares every feature pairwise and returns the names of those requested
// but unavailable. A nil request is always satisfied.
func MissingFeatures(requested, available *core1_0.PhysicalDeviceFeatures) []string {
	if requested == nil {
		return nil
	}
	if available == nil {
		available = &core1_0.PhysicalDeviceFeatures{}
	}

	want := reflect.ValueOf(requested).Elem()
	have := reflect.ValueOf(available).Elem()

	var missing []string
	for _, field := range featureFields {
		if want.FieldByIndex(field.Index).Bool() && !have.FieldByIndex(field.Index).Bool() {
			missing = append(missing, field.Name)
		}
	}
	return missing
}

// FeatureNames lists every toggleable feature name.
func FeatureNames() []string {
	names := make([]string, 0, len(featureFields))
	for _, field := range featureFields {
		names = append(names, field.Name)
	}
	sort.Strings(names)
	return names
}

// FeaturesByName builds a feature set with the named features enabled. Names match
// case-insensitively.
func FeaturesByName(names ...string) (*core1_0.PhysicalDeviceFeatures, error) {
	features := &core1_0.PhysicalDeviceFeatures{}
	value := reflect.ValueOf(features).Elem()

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		field, ok := findFeature(name)
		if !ok {
			return nil, errors.Newf("unknown device feature %q", name)
		}
		value.FieldByIndex(field.Index).SetBool(true)
	}

	return features, nil
}

// MergeFeatures enables every feature enabled in any of the given sets.
func MergeFeatures(sets ...*core1_0.PhysicalDeviceFeatures) *core1_0.PhysicalDeviceFeatures {
	merged := &core1_0.PhysicalDeviceFeatures{}
	out := reflect.ValueOf(merged).Elem()
	for _, set := range sets {
		if set == nil {
			continue
		}
		in := reflect.ValueOf(set).Elem()
		for _, field := range featureFields {
			if in.FieldByIndex(field.Index).Bool() {
				out.FieldByIndex(field.Index).SetBool(true)
			}
		}
	}
	return merged
}

func findFeature(name string) (reflect.StructField, bool) {
	for _, field := range featureFields {
		if strings.EqualFold(field.Name, name) {
			return field, true
		}
	}
	return reflect.StructField{}, false
}
