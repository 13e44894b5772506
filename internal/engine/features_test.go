package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureName(t *testing.T) {
	assert.Equal(t, "inj_severity|none|raw|home", FeatureName("inj_severity", "none", "raw", PerspectiveHome))
	assert.Equal(t, "form_win_pct|last5|raw|diff", FeatureName("form_win_pct", "last5", "raw", PerspectiveDiff))
}

func TestPutTriple(t *testing.T) {
	fs := NewFeatureSet("BOS", "NYK", "2023-24", day(1))
	fs.PutTriple("elo_rating", "none", "raw", 1520, 1480)

	assert.InDelta(t, 1520, fs.Features["elo_rating|none|raw|home"], 1e-9)
	assert.InDelta(t, 1480, fs.Features["elo_rating|none|raw|away"], 1e-9)
	assert.InDelta(t, 40, fs.Features["elo_rating|none|raw|diff"], 1e-9)
}

func TestMerge(t *testing.T) {
	base := NewFeatureSet("BOS", "NYK", "2023-24", day(1))
	base.PutTriple("a", "none", "raw", 1, 0)

	other := NewFeatureSet("BOS", "NYK", "2023-24", day(1))
	other.PutTriple("b", "none", "raw", 2, 0)
	other.Audit["b|none|raw|home"] = []ContributingPlayer{{PlayerID: "x"}}

	base.Merge(other)
	base.Merge(nil)

	assert.Len(t, base.Features, 6)
	assert.InDelta(t, 2, base.Features["b|none|raw|home"], 1e-9)
	assert.Len(t, base.Audit["b|none|raw|home"], 1)
}

func TestClip(t *testing.T) {
	assert.InDelta(t, 0, clip(-0.2, 0, 1.5), 1e-9)
	assert.InDelta(t, 1.5, clip(2.1, 0, 1.5), 1e-9)
	assert.InDelta(t, 0.7, clip(0.7, 0, 1.5), 1e-9)
}
