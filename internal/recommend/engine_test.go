// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package recommend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/avoronkov/eventscope/internal/models"
)

type stubRanker struct {
	ids     []string
	err     error
	lastReq RankRequest
	calls   int
}

func (s *stubRanker) Rank(_ context.Context, req RankRequest) ([]string, error) {
	s.calls++
	s.lastReq = req
	return s.ids, s.err
}

func event(id, city string, categories ...string) models.Event {
	return models.Event{ID: id, Title: "Событие " + id, City: city, Categories: categories}
}

func ids(events []models.Event) []string {
	if len(events) == 0 {
		return nil
	}
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestEngine_RemotePath(t *testing.T) {
	ranker := &stubRanker{ids: []string{"e2", "ghost", "e1"}}
	e := NewEngine(ranker)

	events := []models.Event{
		event("e1", "Ростов", "концерты"),
		event("e2", "Ростов", "театр"),
		event("e3", "Москва", "концерты"),
	}
	rc := models.RecommendationContext{
		City:           "Ростов",
		CategoryFilter: "концерты",
		RecentEventIDs: []string{"e9"},
	}

	got := e.Recommend(context.Background(), rc, events)

	// Remote order preserved, unknown ids dropped.
	if want := []string{"e2", "e1"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Recommend = %v, want %v", ids(got), want)
	}
	if want := []string{"e9"}; !reflect.DeepEqual(ranker.lastReq.LastEvents, want) {
		t.Errorf("ranker saw history %v, want %v", ranker.lastReq.LastEvents, want)
	}

	// Candidates passed to the service are filtered to the context city.
	if len(ranker.lastReq.AllEvents) != 2 {
		t.Errorf("ranker saw %d candidates, want the 2 Ростов events", len(ranker.lastReq.AllEvents))
	}
	if ranker.lastReq.Interests != "концерты" || ranker.lastReq.City != "Ростов" {
		t.Errorf("ranker request context = %+v", ranker.lastReq)
	}
}

func TestEngine_RemotePath_AllEventsWhenCityHasNoMatches(t *testing.T) {
	ranker := &stubRanker{ids: []string{"e1"}}
	e := NewEngine(ranker)

	events := []models.Event{event("e1", "Москва"), event("e2", "Казань")}
	rc := models.RecommendationContext{City: "Ростов", RecentEventIDs: []string{"e9"}}

	e.Recommend(context.Background(), rc, events)

	if len(ranker.lastReq.AllEvents) != 2 {
		t.Errorf("ranker saw %d candidates, want all events when the city has no matches", len(ranker.lastReq.AllEvents))
	}
}

func TestEngine_RemotePath_TruncatesToFive(t *testing.T) {
	ranked := []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"}
	ranker := &stubRanker{ids: ranked}
	e := NewEngine(ranker)

	var events []models.Event
	for _, id := range ranked {
		events = append(events, event(id, "Ростов"))
	}

	rc := models.RecommendationContext{City: "Ростов", RecentEventIDs: []string{"e9"}}
	got := e.Recommend(context.Background(), rc, events)
	if len(got) != MaxResults {
		t.Errorf("remote path returned %d events, want %d", len(got), MaxResults)
	}
}

// Without any recent history the engine must not consult the ranking
// service at all: the result is the first five candidates in input order
// even when the service is reachable and would reorder them.
func TestEngine_NoRecentsSkipsRemote(t *testing.T) {
	ranker := &stubRanker{ids: []string{"e3", "e1"}}
	e := NewEngine(ranker)

	events := []models.Event{
		event("e1", "Ростов", "концерты"),
		event("e2", "Ростов", "театр"),
		event("e3", "Москва", "концерты"),
	}
	rc := models.RecommendationContext{City: "Ростов", CategoryFilter: "концерты"}

	got := e.Recommend(context.Background(), rc, events)
	if want := []string{"e1", "e2", "e3"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Recommend = %v, want unranked input order %v", ids(got), want)
	}
	if ranker.calls != 0 {
		t.Errorf("ranker was consulted %d times, want 0 without history", ranker.calls)
	}
}

// The scenario from the product requirements: remote down, mixed cities.
// Scores are e1=3 (category+city), e2=1 (city), e3=0.
func TestEngine_FallbackScoringExample(t *testing.T) {
	e := NewEngine(&stubRanker{err: errors.New("service down")})

	events := []models.Event{
		event("e1", "Ростов", "концерты"),
		event("e2", "Ростов", "театр"),
		event("e3", "Москва", "концерты"),
	}
	rc := models.RecommendationContext{
		City:           "Ростов",
		CategoryFilter: "концерты",
		RecentEventIDs: []string{"e9"},
	}

	got := e.Recommend(context.Background(), rc, events)
	if want := []string{"e1", "e2", "e3"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Recommend = %v, want %v", ids(got), want)
	}
}

func TestEngine_Fallback_WithRecentHistory(t *testing.T) {
	e := NewEngine(&stubRanker{err: errors.New("service down")})

	events := []models.Event{
		event("seen", "Ростов", "концерты"),
		event("far", "Москва", "театр"),
		event("match", "Ростов", "концерты"),
		event("cityOnly", "Ростов", "театр"),
		event("catOnly", "Казань", "концерты"),
	}
	rc := models.RecommendationContext{
		City:           "Ростов",
		CategoryFilter: "концерты",
		RecentEventIDs: []string{"seen"},
	}

	got := e.Recommend(context.Background(), rc, events)

	// seen is excluded; match=3, catOnly=2, cityOnly=1, far=0.
	want := []string{"match", "catOnly", "cityOnly", "far"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Recommend = %v, want %v", ids(got), want)
	}
	for _, e := range got {
		if e.ID == "seen" {
			t.Error("recent event leaked into recommendations")
		}
	}
}

func TestEngine_Fallback_TiesKeepInputOrder(t *testing.T) {
	e := NewEngine(&stubRanker{err: errors.New("down")})

	events := []models.Event{
		event("a", "Ростов"),
		event("b", "Ростов"),
		event("c", "Ростов"),
	}
	rc := models.RecommendationContext{City: "Ростов", RecentEventIDs: []string{"zzz"}}

	got := e.Recommend(context.Background(), rc, events)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("tied scores must keep input order: got %v", ids(got))
	}
}

func TestEngine_Fallback_NoRecentsUnranked(t *testing.T) {
	ranker := &stubRanker{err: errors.New("down")}
	e := NewEngine(ranker)

	var events []models.Event
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5", "e6"} {
		events = append(events, event(id, "Ростов"))
	}
	rc := models.RecommendationContext{City: "Ростов"}

	got := e.Recommend(context.Background(), rc, events)
	if want := []string{"e1", "e2", "e3", "e4", "e5"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("no-recents fallback = %v, want first five unranked", ids(got))
	}
}

func TestEngine_Fallback_AllRecentFallsBackUnranked(t *testing.T) {
	e := NewEngine(&stubRanker{err: errors.New("down")})

	events := []models.Event{event("e1", "Ростов"), event("e2", "Ростов")}
	rc := models.RecommendationContext{
		City:           "Ростов",
		RecentEventIDs: []string{"e1", "e2"},
	}

	got := e.Recommend(context.Background(), rc, events)
	if want := []string{"e1", "e2"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("zero-result scoring must fall back to unranked, got %v", ids(got))
	}
}

func TestEngine_EmptyRemoteResultFallsBack(t *testing.T) {
	ranker := &stubRanker{ids: nil}
	e := NewEngine(ranker)

	events := []models.Event{event("e1", "Ростов")}
	rc := models.RecommendationContext{City: "Ростов", RecentEventIDs: []string{"zzz"}}
	got := e.Recommend(context.Background(), rc, events)

	if ranker.calls != 1 {
		t.Error("remote ranker should have been consulted")
	}
	if want := []string{"e1"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("empty remote result must fall back, got %v", ids(got))
	}
}

func TestEngine_NilRankerUsesFallback(t *testing.T) {
	e := NewEngine(nil)

	events := []models.Event{event("e1", "Ростов")}
	got := e.Recommend(context.Background(), models.RecommendationContext{City: "Ростов"}, events)
	if len(got) != 1 {
		t.Errorf("nil ranker should still recommend, got %v", ids(got))
	}
}

func TestEngine_NoEvents(t *testing.T) {
	e := NewEngine(&stubRanker{})
	if got := e.Recommend(context.Background(), models.RecommendationContext{}, nil); got != nil {
		t.Errorf("no candidates should yield nil, got %v", ids(got))
	}
}

func TestHTTPRanker_Rank(t *testing.T) {
	var gotBody RankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := jsonDecode(r, &gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"event_ids": ["e2", "e1"]}`))
	}))
	defer srv.Close()

	ranker := NewHTTPRanker(srv.URL, time.Second)
	got, err := ranker.Rank(context.Background(), RankRequest{
		LastEvents: []string{"e9"},
		City:       "Ростов",
		Interests:  "концерты",
	})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if want := []string{"e2", "e1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
	if gotBody.City != "Ростов" || gotBody.Interests != "концерты" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestHTTPRanker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ranker := NewHTTPRanker(srv.URL, time.Second)
	if _, err := ranker.Rank(context.Background(), RankRequest{}); err == nil {
		t.Error("expected error on 502 response")
	}
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
