// Package resolve follows references between stored records.
//
// Three walks are provided, all over a consistent store.View:
//
//   - Expand adds _include and _revinclude records to a search page.
//   - Everything sweeps the compartment of a root record ($everything).
//   - Document collects the transitive closure of a root record up to a
//     fixed depth ($document).
//
// Reference tables come from the catalog. Walks read reference values from
// the search index, never from bodies, so they see exactly what search sees.
// References to records that do not exist are skipped silently.
package resolve
