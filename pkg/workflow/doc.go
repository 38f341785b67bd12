// Package workflow holds the decision core: the transition engine, the
// circuit-breaker policy and the disambiguation consumption rules.
//
// Everything here is pure. Functions map (state, event, verdicts) to
// (next state, directives) and never touch a store, a clock or the
// network, so identical inputs always produce identical outputs.
package workflow
