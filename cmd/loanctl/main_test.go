package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanguard/loan"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainCommandSavesModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "dt.json")
	out, err := run(t, "train", "--model-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "train=4 test=2")
	assert.Contains(t, out, "model saved to")

	_, err = os.Stat(path)
	assert.NoError(t, err)

	out, err = run(t, "evaluate", "--model-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "samples=6")

	_, err = run(t, "evaluate", "--model-path", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPredictCommand(t *testing.T) {
	out, err := run(t, "predict", "--age", "45", "--employment", "Business")
	require.NoError(t, err)

	var d loan.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, 45, d.Applicant.Age)
	assert.Equal(t, loan.MessageFor(d.Label), d.Message)

	_, err = run(t, "predict", "--employment", "Astronaut")
	assert.Error(t, err)
}
