package projection

import "reflect"

// ContractID derives a stable ProjectionName for a projection type. It is
// computed once per Go type from its package path and type name, so two
// values of the same type always resolve to the same name regardless of
// instance state. Serialization and wire-format concerns are explicitly
// out of scope for this derivation (see spec §1) — ContractID only needs
// to be stable and collision-free within one compiled binary.
func ContractID(v any) ProjectionName {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	if t.PkgPath() == "" {
		return ProjectionName(t.Name())
	}
	return ProjectionName(t.PkgPath() + "." + t.Name())
}
