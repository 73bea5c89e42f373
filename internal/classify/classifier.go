// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package classify maps free-text event titles and descriptions to category
// labels via a static keyword rule table. Classification is pure and
// deterministic: the same input always yields the same labels in rule
// declaration order.
package classify

import (
	"strings"

	"github.com/avoronkov/eventscope/internal/cache"
	"github.com/avoronkov/eventscope/internal/models"
)

// Rule binds a category label to the keywords that select it. A category is
// included when any of its keywords occurs as a substring of the lower-cased
// title+description text.
type Rule struct {
	Category string
	Keywords []string
}

// DefaultRules is the built-in rule table. Declaration order defines the
// output label order. Keywords are stems so that Russian inflections match.
var DefaultRules = []Rule{
	{"концерты", []string{"концерт", "музык", "выступлен", "группа", "оркестр", "хор", "джаз", "рок"}},
	{"театр", []string{"театр", "спектакл", "пьес", "постановк", "опер", "балет", "драм"}},
	{"стендап", []string{"стендап", "stand-up", "standup", "комеди", "юмор", "открытый микрофон"}},
	{"спорт", []string{"спорт", "матч", "турнир", "забег", "марафон", "чемпионат", "тренировк", "йог"}},
	{"кино", []string{"кино", "фильм", "кинопоказ", "премьер", "сеанс"}},
	{"выставки", []string{"выставк", "галере", "экспозици", "вернисаж", "музе"}},
	{"фестивали", []string{"фестивал", "ярмарк", "праздник"}},
	{"детям", []string{"дет", "ребен", "ребён", "семейн", "малыш"}},
	{"образование", []string{"лекци", "семинар", "мастер-класс", "курс", "тренинг", "воркшоп", "конференци"}},
	{"экскурсии", []string{"экскурси", "прогулк", "тур по", "обзорн"}},
}

// Classifier assigns category labels using an Aho-Corasick automaton built
// once over the whole keyword table, so a classification pass scans the text
// a single time regardless of rule count.
type Classifier struct {
	rules   []Rule
	matcher *cache.AhoCorasick
}

// New creates a classifier over the default rule table.
func New() *Classifier {
	return NewWithRules(DefaultRules)
}

// NewWithRules creates a classifier over a custom rule table.
// Rule order defines output label order.
func NewWithRules(rules []Rule) *Classifier {
	matcher := cache.NewAhoCorasick()
	for i, rule := range rules {
		matcher.AddPatterns(rule.Keywords, i)
	}
	matcher.Build()
	return &Classifier{rules: rules, matcher: matcher}
}

// Classify returns the category labels for the given title and description,
// in rule declaration order. Never returns an empty slice: when no rule
// matches, the result is the default category.
func (c *Classifier) Classify(title, description string) []string {
	text := strings.ToLower(title + " " + description)

	matched := make(map[int]struct{})
	for _, m := range c.matcher.Search(text) {
		matched[m.Data.(int)] = struct{}{}
	}

	if len(matched) == 0 {
		return []string{models.DefaultCategory}
	}

	labels := make([]string, 0, len(matched))
	for i, rule := range c.rules {
		if _, ok := matched[i]; ok {
			labels = append(labels, rule.Category)
		}
	}
	return labels
}

// Categories returns the known category labels in declaration order, with
// the default category appended. Used by the API's category listing.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, rule := range c.rules {
		out = append(out, rule.Category)
	}
	return append(out, models.DefaultCategory)
}
