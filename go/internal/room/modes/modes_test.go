package modes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Len(t, p, 6)
	assert.Equal(t, 3, p.Settings(models.ModeEasy).BuzzDelaySeconds)
	assert.Equal(t, 10, p.Settings(models.ModeTurnBased).AdvantageSeconds)
	assert.Equal(t, 10, p.Settings(models.ModeClassic).PointsCorrect)
	assert.Equal(t, 5, p.Settings(models.ModeClassic).PointsWrong)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed:\n  points_correct: 15\n  points_wrong: 0\n  points_excellent: 30\n  countdown_steps: 0\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, p.Settings(models.ModeSpeed).PointsCorrect)
	assert.Equal(t, 0, p.Settings(models.ModeSpeed).CountdownSteps)
	assert.Equal(t, 10, p.Settings(models.ModeClassic).PointsCorrect)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("bogus:\n  points_correct: 1\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("turnBased:\n  advantage_seconds: 0\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("classic: [1, 2"))
	assert.Error(t, err)
}
