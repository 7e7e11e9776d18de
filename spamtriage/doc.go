// Package spamtriage implements the spam triage graph. A gateway node
// classifies the item and picks a branch; the rule branch decides from the
// classifier score alone while the policy branch runs a detailed analysis
// first. Every collaborator failure degrades to a documented fallback, so a
// run always ends in a Decision.
package spamtriage
