package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectStationIDs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "stations.txt")
	require.NoError(t, os.WriteFile(file, []byte("# reference stations\nUSW00094728\n\nUSC00305801  # central park\nUSW00014732\n"), 0o644))

	ids, err := collectStationIDs(" USW00014732 ,USW00023174,", file, []string{"USW00094728", "USW00003017"})
	require.NoError(t, err)

	assert.Equal(t, []string{"USW00014732", "USW00023174", "USW00094728", "USC00305801", "USW00003017"}, ids)
}

func TestCollectStationIDs_Errors(t *testing.T) {
	_, err := collectStationIDs("", filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.ErrorContains(t, err, "failed to open stations file")

	_, err = collectStationIDs("../etc/passwd", "", nil)
	assert.Error(t, err)
}

func TestCollectStationIDs_Empty(t *testing.T) {
	ids, err := collectStationIDs("", "", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWarmCommand_RequiresStations(t *testing.T) {
	cmd := rootCommand()
	cmd.SetArgs([]string{"warm"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "no stations given")
}

func TestWarmCommand_PartialYears(t *testing.T) {
	cmd := rootCommand()
	cmd.SetArgs([]string{"warm", "--stations", "USW00094728", "--start-year", "2000"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "start_year and end_year must be provided together")
}
