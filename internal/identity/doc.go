// Package identity canonicalizes platform-specific product identities into
// logical entities.
//
// Resolution policy, applied in order:
//
//  1. A provider-supplied unified id is used directly as the canonical key.
//  2. Otherwise the normalized display name plus category is matched against
//     known entities; the first match wins.
//  3. No match creates a new entity. Entities are never deleted.
//
// Canonical ids are content-derived (SHA1 UUIDs over the unified id or the
// normalized name and category), so resolving the same set of inputs in any
// order yields the same grouping and the same final ids.
//
// Name plus category matching is a heuristic: it can merge
// homonymous-but-distinct products. Enabling publisher matching narrows the
// key and reduces that risk but does not eliminate it. When inputs that share
// a name carry contradictory metadata the resolver keeps them separate,
// records a Conflict, and logs it rather than guessing.
package identity
