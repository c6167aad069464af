package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/logger"
)

func TestRootCmd_HasCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"ingest", "index", "ask", "chat", "retrieve", "serve", "config", "staged", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)

	flag = rootCmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, flag)
	assert.Equal(t, "text", flag.DefValue)
}

func TestRootCmd_UnknownLogFormat(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--log-format", "xml", "version"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestRootCmd_VerboseEnablesDebug(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	defer logger.SetVerbose(false)

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"--verbose", "version"})

	require.NoError(t, rootCmd.Execute())
	assert.True(t, logger.IsVerbose())
}

func TestSetServices_NilServicesReportNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	SetServices(Services{})

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ingest", "docs"}, "ingest service not configured"},
		{[]string{"index"}, "index service not configured"},
		{[]string{"ask", "q"}, "answer service not configured"},
		{[]string{"chat"}, "session service not configured"},
		{[]string{"retrieve", "q"}, "retrieval service not configured"},
		{[]string{"config", "show"}, "settings service not configured"},
		{[]string{"staged", "list"}, "staging not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			buf := new(bytes.Buffer)
			rootCmd.SetOut(buf)
			rootCmd.SetErr(buf)
			rootCmd.SetArgs(tt.args)

			err := rootCmd.Execute()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
