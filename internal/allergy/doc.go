// Package allergy cross-references taken items against a user's allergies.
//
// Two rules run for every taken item, in order: a case-insensitive substring
// match in either direction between the item label and each allergy term, and
// a lookup in a food-to-allergen table. Both rules may fire for the same item;
// each firing produces its own Warning.
package allergy
