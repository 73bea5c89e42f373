// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package cache provides the small high-performance data structures used
// across Eventscope: a keyword automaton for classification and a TTL-bounded
// LRU cache for lookup results.
package cache

import (
	"strings"
	"sync"
)

// AhoCorasick implements the Aho-Corasick multi-pattern string matching
// algorithm. It finds all occurrences of the registered keywords in a text
// in O(n + m + z) time, much faster than scanning each keyword individually.
//
// Eventscope uses it for category classification (matching event text
// against per-category keyword lists) and for street-marker detection in
// address parsing. Matching is case-insensitive.
//
// Usage:
//
//	ac := NewAhoCorasick()
//	ac.AddPattern("концерт", "концерты")
//	ac.Build()
//	matches := ac.Search("Большой концерт в парке")
type AhoCorasick struct {
	mu       sync.RWMutex
	root     *acNode
	patterns []Pattern
	built    bool
}

// acNode is a node in the automaton trie.
type acNode struct {
	children map[rune]*acNode
	failure  *acNode // failure link followed when a match breaks
	output   []int   // indices of patterns ending at this node
}

// Pattern is a registered keyword with associated data.
type Pattern struct {
	Text string
	Data any
}

// Match is one keyword occurrence found in the searched text.
type Match struct {
	Pattern string
	Data    any
}

// NewAhoCorasick creates an empty automaton.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{root: newACNode()}
}

func newACNode() *acNode {
	return &acNode{children: make(map[rune]*acNode)}
}

// AddPattern registers a keyword. Must be called before Build.
func (ac *AhoCorasick) AddPattern(pattern string, data any) {
	if pattern == "" {
		return
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.built = false
	ac.patterns = append(ac.patterns, Pattern{Text: pattern, Data: data})
}

// AddPatterns registers multiple keywords sharing the same data.
func (ac *AhoCorasick) AddPatterns(patterns []string, data any) {
	for _, p := range patterns {
		ac.AddPattern(p, data)
	}
}

// Build constructs the automaton. Must be called after adding patterns and
// before searching.
func (ac *AhoCorasick) Build() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.built {
		return
	}

	ac.root = newACNode()
	for i, p := range ac.patterns {
		ac.insertPattern(i, p.Text)
	}
	ac.buildFailureLinks()
	ac.built = true
}

func (ac *AhoCorasick) insertPattern(index int, pattern string) {
	node := ac.root
	for _, ch := range strings.ToLower(pattern) {
		if node.children[ch] == nil {
			node.children[ch] = newACNode()
		}
		node = node.children[ch]
	}
	node.output = append(node.output, index)
}

// buildFailureLinks wires suffix links breadth-first.
func (ac *AhoCorasick) buildFailureLinks() {
	queue := make([]*acNode, 0, len(ac.root.children))
	for _, child := range ac.root.children {
		child.failure = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}

			if fail == nil {
				child.failure = ac.root
			} else {
				child.failure = fail.children[ch]
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search returns every keyword occurrence in the text, in text order.
// Returns nil when the automaton is empty or not built.
func (ac *AhoCorasick) Search(text string) []Match {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return nil
	}

	var matches []Match
	node := ac.root

	for _, ch := range strings.ToLower(text) {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = ac.root
			continue
		}
		node = node.children[ch]

		for _, idx := range node.output {
			p := ac.patterns[idx]
			matches = append(matches, Match{Pattern: p.Text, Data: p.Data})
		}
	}

	return matches
}

// Contains reports whether any registered keyword occurs in the text.
func (ac *AhoCorasick) Contains(text string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return false
	}

	node := ac.root
	for _, ch := range strings.ToLower(text) {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = ac.root
			continue
		}
		node = node.children[ch]
		if len(node.output) > 0 {
			return true
		}
	}
	return false
}

// PatternCount returns the number of registered keywords.
func (ac *AhoCorasick) PatternCount() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return len(ac.patterns)
}
