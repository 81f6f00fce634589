package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTransformerRescalesAndQuantizes(t *testing.T) {
	pt := NewProgressTransformer(0.5, 1.0, 0.1)

	assert.Equal(t, 0.5, pt.Apply(0.0))
	assert.Equal(t, 1.0, pt.Apply(1.0))

	pt2 := NewProgressTransformer(0, 1, 0.25)
	assert.Equal(t, 0.25, pt2.Apply(0.3))
}

func TestProgressTransformerClampsOutOfRange(t *testing.T) {
	pt := NewProgressTransformer(0, 1, 0)
	assert.Equal(t, 0.0, pt.Apply(-5))
	assert.Equal(t, 1.0, pt.Apply(5))
}

func TestProgressTransformerNoStepIsExact(t *testing.T) {
	pt := NewProgressTransformer(0, 10, 0)
	assert.Equal(t, 3.7, pt.Apply(0.37))
}

func TestWeightedAverageCombinesSubProgress(t *testing.T) {
	assert.Equal(t, 0.5, WeightedAverage([]float64{1.0, 0.0}, []float64{1, 1}))
	assert.Equal(t, 0.75, WeightedAverage([]float64{1.0, 0.0}, []float64{3, 1}))
}

func TestWeightedAverageEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, WeightedAverage(nil, nil))
}

type fakeSource struct {
	name string
	prog float64
}

func (f fakeSource) Name() string      { return f.name }
func (f fakeSource) Progress() float64 { return f.prog }

func TestProgressRouterServesJSON(t *testing.T) {
	router := NewProgressRouter(
		fakeSource{name: "stage-a", prog: 0.25},
		fakeSource{name: "stage-b", prog: 1.0},
	)

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []progressEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, progressEntry{Name: "stage-a", Progress: 0.25}, entries[0])
	assert.Equal(t, progressEntry{Name: "stage-b", Progress: 1.0}, entries[1])
}
