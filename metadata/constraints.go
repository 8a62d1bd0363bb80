// Package metadata implements typed property bags and the constraint
// validation engine applied to item metadata at creation time.
package metadata

import (
	"fmt"
	"slices"

	"github.com/ruteri/content-service-backend/interfaces"
)

// Validate evaluates every constraint of group against props and returns the
// list of violations. An empty list means the bag is valid. A nil group
// accepts everything.
//
// Rules:
//   - Mandatory: the source property must be present.
//   - Mapping: descriptive only, never fails.
//   - AllowableType: a present value must coerce to the declared type.
//   - AllowableTypeAndValues: as AllowableType, and the canonical form of the
//     coerced value must be one of the allowable values.
func Validate(group *interfaces.ConstraintGroup, props map[string]any) []string {
	if group == nil {
		return nil
	}

	var errs []string
	for _, c := range group.Constraints {
		raw, present := lookup(props, c.SourceProperty)

		switch c.Kind {
		case interfaces.ConstraintMandatory:
			if !present {
				errs = append(errs, fmt.Sprintf("constraint %q: property %q is mandatory", c.Name, c.SourceProperty))
			}

		case interfaces.ConstraintMapping:

		case interfaces.ConstraintAllowableType:
			if !present {
				continue
			}
			if _, err := Coerce(raw, c.ValueType); err != nil {
				errs = append(errs, fmt.Sprintf("constraint %q: property %q must be of type %s: %v", c.Name, c.SourceProperty, c.ValueType, err))
			}

		case interfaces.ConstraintAllowableTypeAndValues:
			if !present {
				continue
			}
			value, err := Coerce(raw, c.ValueType)
			if err != nil {
				errs = append(errs, fmt.Sprintf("constraint %q: property %q must be of type %s: %v", c.Name, c.SourceProperty, c.ValueType, err))
				continue
			}
			if !allowed(value, c) {
				errs = append(errs, fmt.Sprintf("constraint %q: value %q of property %q is not one of %v", c.Name, value.Canonical(), c.SourceProperty, c.AllowableValues))
			}

		default:
			errs = append(errs, fmt.Sprintf("constraint %q: unknown kind %q", c.Name, c.Kind))
		}
	}
	return errs
}

// CheckDefinitions rejects constraints that could never be evaluated.
func CheckDefinitions(constraints []interfaces.Constraint) error {
	seen := make(map[string]struct{}, len(constraints))
	for _, c := range constraints {
		if c.Name == "" {
			return fmt.Errorf("%w: constraint name is empty", interfaces.ErrValidation)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate constraint %q", interfaces.ErrValidation, c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.SourceProperty == "" {
			return fmt.Errorf("%w: constraint %q has no source property", interfaces.ErrValidation, c.Name)
		}

		switch c.Kind {
		case interfaces.ConstraintMandatory, interfaces.ConstraintMapping:
		case interfaces.ConstraintAllowableType, interfaces.ConstraintAllowableTypeAndValues:
			if !c.ValueType.Valid() {
				return fmt.Errorf("%w: constraint %q declares unsupported type %q", interfaces.ErrValidation, c.Name, c.ValueType)
			}
		default:
			return fmt.Errorf("%w: constraint %q has unknown kind %q", interfaces.ErrValidation, c.Name, c.Kind)
		}
	}
	return nil
}

// UpdateConstraints applies submitted constraints to group: a constraint with
// the name of an existing one overwrites it in place, anything else is appended.
// Items already stored are never re-validated.
func UpdateConstraints(group *interfaces.ConstraintGroup, submitted []interfaces.Constraint) {
	for _, c := range submitted {
		idx := slices.IndexFunc(group.Constraints, func(existing interfaces.Constraint) bool {
			return existing.Name == c.Name
		})
		if idx >= 0 {
			group.Constraints[idx] = c
		} else {
			group.Constraints = append(group.Constraints, c)
		}
	}
}

// TypedProperties converts a validated raw bag to typed values, using the type
// declared by a typed constraint on the property when there is one.
func TypedProperties(group *interfaces.ConstraintGroup, props map[string]any) map[string]interfaces.PropertyValue {
	declared := make(map[string]interfaces.PropertyType)
	if group != nil {
		for _, c := range group.Constraints {
			if c.Kind == interfaces.ConstraintAllowableType || c.Kind == interfaces.ConstraintAllowableTypeAndValues {
				declared[c.SourceProperty] = c.ValueType
			}
		}
	}

	typed := make(map[string]interfaces.PropertyValue, len(props))
	for name, raw := range props {
		if raw == nil {
			continue
		}
		if t, ok := declared[name]; ok {
			if v, err := Coerce(raw, t); err == nil {
				typed[name] = v
				continue
			}
		}
		typed[name] = Infer(raw)
	}
	return typed
}

// MergeProperties upserts props into group in name order.
func MergeProperties(group *interfaces.PropertyGroup, props map[string]interfaces.PropertyValue) {
	for _, name := range SortedNames(props) {
		group.Set(name, props[name])
	}
}

func lookup(props map[string]any, name string) (any, bool) {
	raw, ok := props[name]
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

func allowed(value interfaces.PropertyValue, c interfaces.Constraint) bool {
	canonical := value.Canonical()
	for _, candidate := range c.AllowableValues {
		if candidate == canonical {
			return true
		}
		if coerced, err := Coerce(candidate, c.ValueType); err == nil && coerced.Canonical() == canonical {
			return true
		}
	}
	return false
}
