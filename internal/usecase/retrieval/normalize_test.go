package retrieval_test

import (
	"testing"

	"case-retriever/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMinMax_MapsOntoUnitInterval(t *testing.T) {
	normalized := retrieval.NormalizeMinMax([]float64{3.2, 11.0, 7.5, 4.4})

	require.Len(t, normalized, 4)
	for _, v := range normalized {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 0.0, normalized[0])
	assert.Equal(t, 1.0, normalized[1])
}

func TestNormalizeMinMax_ConstantListBecomesAllOnes(t *testing.T) {
	normalized := retrieval.NormalizeMinMax([]float64{0.4, 0.4, 0.4})

	assert.Equal(t, []float64{1.0, 1.0, 1.0}, normalized)
}

func TestNormalizeMinMax_SingleElement(t *testing.T) {
	assert.Equal(t, []float64{1.0}, retrieval.NormalizeMinMax([]float64{0.123}))
}

func TestNormalizeMinMax_Empty(t *testing.T) {
	assert.Nil(t, retrieval.NormalizeMinMax(nil))
	assert.Nil(t, retrieval.NormalizeMinMax([]float64{}))
}
