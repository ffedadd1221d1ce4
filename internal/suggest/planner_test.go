package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
	"itinerary-router/internal/preferences"
	"itinerary-router/internal/testutil"
)

type stubExtractor struct {
	prefs models.Preferences
	err   error
	calls int
}

func (s *stubExtractor) Infer(ctx context.Context, text string) (models.Preferences, error) {
	s.calls++
	return s.prefs, s.err
}

type plannerFixture struct {
	planner   *Planner
	lookup    *testutil.FakePlaceLookup
	catalog   *testutil.MemoryLocationRepository
	extractor *stubExtractor
}

func newPlannerFixture(t *testing.T) *plannerFixture {
	t.Helper()

	lookup := testutil.NewFakePlaceLookup()
	lookup.AddPlaces("museum", models.Location{ID: "m1", Name: "Museum", Lat: 1.5, Lng: 0, Category: "museum"})
	lookup.AddPlaces("natural_feature", models.Location{ID: "b1", Name: "Beach", Lat: 0.01, Lng: 0, Category: "natural_feature"})
	lookup.AddPlaces("restaurant", models.Location{ID: "r1", Name: "Diner", Lat: 2, Lng: 0, Category: "restaurant"})
	lookup.AddPlaces(DefaultPlaceType, models.Location{ID: "t1", Name: "Tower", Lat: 1, Lng: 0, Category: DefaultPlaceType})

	catalog := testutil.NewMemoryLocationRepository()
	extractor := &stubExtractor{}
	planner := NewPlanner(
		newTestSampler(testutil.NewFakeRoutingService()),
		newTestAggregator(lookup),
		NewTranslator(nil),
		extractor,
		catalog,
		DefaultPlannerOptions(),
		logging.Nop(),
	)
	return &plannerFixture{planner: planner, lookup: lookup, catalog: catalog, extractor: extractor}
}

func suggestionIDs(locs []models.Location) []string {
	ids := make([]string, len(locs))
	for i, l := range locs {
		ids[i] = l.ID
	}
	return ids
}

func TestPlanSuggestions_ManualPrefix(t *testing.T) {
	f := newPlannerFixture(t)

	res, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:      "Categories: museum, beach",
		Waypoints: northbound[:3],
	})

	require.NoError(t, err)
	assert.Zero(t, f.extractor.calls)
	assert.Equal(t, preferences.SourceManual, res.Preferences.Source)
	assert.Equal(t, []string{"museum", "natural_feature"}, res.PlaceTypes)
	assert.Equal(t, []string{"b1", "m1"}, suggestionIDs(res.Suggestions))
	assert.Equal(t, 10, res.Sampling.Points)
	assert.Equal(t, 20, res.Aggregation.Queries)
	assert.Equal(t, 2, f.catalog.Count(), "suggestions are recorded in the catalog")
}

func TestPlanSuggestions_UseNLPDisabled(t *testing.T) {
	f := newPlannerFixture(t)
	useNLP := false

	res, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:       "anything",
		UseNLP:     &useNLP,
		Categories: []string{"gastronomy"},
		Waypoints:  northbound[:2],
	})

	require.NoError(t, err)
	assert.Zero(t, f.extractor.calls)
	assert.Equal(t, []string{"restaurant"}, res.PlaceTypes)
	assert.Equal(t, 1.0, res.Preferences.Categories["gastronomy"])
}

func TestPlanSuggestions_InferredPreferences(t *testing.T) {
	f := newPlannerFixture(t)
	f.extractor.prefs = models.Preferences{
		Categories: map[string]float64{"gastronomy": 0.9, "nightlife": 0.05},
		Source:     preferences.SourceNLP,
	}

	res, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:      "good food",
		Waypoints: northbound,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.extractor.calls)
	assert.Equal(t, []string{"restaurant"}, res.PlaceTypes, "low scoring categories are ignored")
	assert.Equal(t, []string{"r1"}, suggestionIDs(res.Suggestions))
}

func TestPlanSuggestions_ExtractorFailureUsesDefault(t *testing.T) {
	f := newPlannerFixture(t)
	f.extractor.err = errors.New("service down")

	res, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:      "something nice",
		Waypoints: northbound[:2],
	})

	require.NoError(t, err)
	assert.Equal(t, []string{DefaultPlaceType}, res.PlaceTypes)
	assert.Equal(t, []string{"t1"}, suggestionIDs(res.Suggestions))
}

func TestPlanSuggestions_CatalogFailureIsNotFatal(t *testing.T) {
	f := newPlannerFixture(t)
	f.catalog.UpsertErr = errors.New("db down")

	res, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:      "Categories: museum",
		Waypoints: northbound[:3],
	})

	require.NoError(t, err)
	assert.Len(t, res.Suggestions, 1)
	assert.Zero(t, f.catalog.Count())
}

func TestPlanSuggestions_InsufficientWaypoints(t *testing.T) {
	f := newPlannerFixture(t)

	_, err := f.planner.PlanSuggestions(context.Background(), PlanRequest{
		Text:      "Categories: museum",
		Waypoints: northbound[:1],
	})

	assert.ErrorIs(t, err, ErrInsufficientWaypoints)
	assert.Empty(t, f.lookup.Queries())
}
