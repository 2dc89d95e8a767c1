package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"check", "batch", "serve", "cache", "tract"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lmi-check", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, ".env", flag.DefValue)
}

func TestCheckCommand_Flags(t *testing.T) {
	for _, name := range []string{"place", "level", "alt", "output"} {
		assert.NotNil(t, checkCmd.Flags().Lookup(name), "check should have --%s", name)
	}
	assert.Equal(t, "tract", checkCmd.Flags().Lookup("level").DefValue)
	assert.Equal(t, "text", checkCmd.Flags().Lookup("output").DefValue)
	assert.Error(t, checkCmd.Args(checkCmd, nil))
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("input")
	require.NotNil(t, flag, "batch command should have --input flag")

	out := batchCmd.Flags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "-", out.DefValue)

	conc := batchCmd.Flags().Lookup("concurrency")
	require.NotNil(t, conc)
	assert.Equal(t, "0", conc.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"migrate", "purge", "get", "stats", "import"} {
		assert.True(t, names[name], "expected cache subcommand %q not found", name)
	}
}

func TestTractCommand_Flags(t *testing.T) {
	assert.NotNil(t, tractLookupCmd.Flags().Lookup("lat"))
	assert.NotNil(t, tractLookupCmd.Flags().Lookup("lon"))
	assert.NotNil(t, tractLookupCmd.Flags().Lookup("income"))

	year := tractDownloadCmd.Flags().Lookup("year")
	require.NotNil(t, year)
	assert.Equal(t, "2020", year.DefValue)
}
