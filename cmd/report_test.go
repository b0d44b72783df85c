package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAnalysis_FileAndFlagLayering(t *testing.T) {
	setTestConfig(t)

	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"analysis:\n  min_dollar_improvement: 7500\n  min_percent_improvement: 20\n",
	), 0o644))

	reportThresholds = path
	t.Cleanup(func() { reportThresholds = "" })

	// The flag overrides the file, which overrides the base config.
	require.NoError(t, reportCmd.Flags().Set("min-percent", "25"))

	analysis, err := resolveAnalysis(reportCmd)
	require.NoError(t, err)

	assert.InDelta(t, 7500, analysis.MinDollarImprovement, 0.001)
	assert.InDelta(t, 25, analysis.MinPercentImprovement, 0.001)
	assert.Equal(t, 24, analysis.WindowMonths)
}

func TestResolveAnalysis_MissingFile(t *testing.T) {
	setTestConfig(t)

	reportThresholds = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { reportThresholds = "" })

	_, err := resolveAnalysis(reportCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read thresholds")
}
