package ensemble

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizerConstantInput(t *testing.T) {
	n := NewNormalizer()
	for i := 0; i < 50; i++ {
		assert.Equal(t, 0.0, n.Process(3.5))
	}
	assert.Equal(t, int64(50), n.Count())
	assert.InDelta(t, 3.5, n.Mean(), 1e-12)
	assert.InDelta(t, 0.0, n.Variance(), 1e-9)
}

func TestNormalizerBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	n := NewNormalizer()
	for i := 0; i < 1000; i++ {
		v := n.Process(rng.NormFloat64() * 100)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestNormalizerProcess(t *testing.T) {
	n := NewNormalizer()
	assert.Equal(t, 0.0, n.Process(2))
	assert.Equal(t, 1.0, n.Process(4))
	assert.Equal(t, 0.5, n.Process(3))
	assert.Equal(t, 0.0, n.Process(0))
	assert.Equal(t, 0.25, n.Process(1))

	assert.InDelta(t, 2.0, n.Mean(), 1e-12)
	assert.InDelta(t, 2.0, n.Variance(), 1e-12)
}

func TestNormalizerEmpty(t *testing.T) {
	n := NewNormalizer()
	assert.Equal(t, 0.0, n.Mean())
	assert.Equal(t, 0.0, n.Variance())

	n.Process(1)
	assert.Equal(t, 0.0, n.Variance())
}

func TestNormalizerReset(t *testing.T) {
	n := NewNormalizer()
	n.Process(1)
	n.Process(10)
	n.Reset()

	assert.Equal(t, int64(0), n.Count())
	assert.Equal(t, 0.0, n.Process(100))
	assert.Equal(t, 100.0, n.Mean())
}

func TestNormalizerStateRoundTrip(t *testing.T) {
	n := NewNormalizer()
	n.Process(1)
	n.Process(5)

	restored := NewNormalizer()
	restored.restore(n.state())
	assert.Equal(t, n.Process(3), restored.Process(3))
	assert.Equal(t, n.Mean(), restored.Mean())

	empty := NewNormalizer()
	empty.restore(NewNormalizer().state())
	assert.Equal(t, 0.0, empty.Process(-7))
	assert.Equal(t, 1.0, empty.Process(-6))
}
