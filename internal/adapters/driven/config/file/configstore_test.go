package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_NestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.model", "llama3.2"))
	assert.FileExists(t, store.Path())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not toml {{{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_WritesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.provider", "ollama"))
	require.NoError(t, store.Set("llm.model", "llama3.2"))
	require.NoError(t, store.Set("retrieval.top_k", 5))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[llm]")
	assert.Contains(t, string(data), "[retrieval]")
	assert.NotContains(t, string(data), `"llm.model"`)
}

func TestConfigStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("embedding.provider", "openai"))
	require.NoError(t, store.Set("retrieval.top_k", 7))
	require.NoError(t, store.Set("llm.temperature", 0.2))
	require.NoError(t, store.Set("chunking.markers", []string{"#=Header 1", "##=Header 2"}))
	require.NoError(t, store.Set("pipeline.size.chunk_size", 800))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "openai", reloaded.GetString("embedding.provider"))
	assert.Equal(t, 7, reloaded.GetInt("retrieval.top_k"))
	assert.Equal(t, 800, reloaded.GetInt("pipeline.size.chunk_size"))
	assert.Equal(t, []string{"#=Header 1", "##=Header 2"}, reloaded.GetStringSlice("chunking.markers"))

	temp, ok := reloaded.Get("llm.temperature")
	require.True(t, ok)
	assert.InDelta(t, 0.2, temp, 1e-9)
}

func TestConfigStore_HandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[llm]
provider = "anthropic"
max_tokens = 512

[timeouts]
generation = "90s"
retrieval = 15
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", store.GetString("llm.provider"))
	assert.Equal(t, 512, store.GetInt("llm.max_tokens"))
	assert.Equal(t, "90s", store.GetString("timeouts.generation"))
	assert.Equal(t, "15", store.GetString("timeouts.retrieval"))
}

func TestConfigStore_GetString(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	store.data["s"] = "hello"
	store.data["i"] = int64(42)
	store.data["f"] = 1.5
	store.data["b"] = true
	store.data["slice"] = []any{"x"}

	assert.Equal(t, "hello", store.GetString("s"))
	assert.Equal(t, "42", store.GetString("i"))
	assert.Equal(t, "1.5", store.GetString("f"))
	assert.Equal(t, "true", store.GetString("b"))
	assert.Empty(t, store.GetString("slice"))
	assert.Empty(t, store.GetString("missing"))
}

func TestConfigStore_GetInt(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	store.data["int64"] = int64(3)
	store.data["int"] = 4
	store.data["float"] = 5.0
	store.data["string"] = " 6 "
	store.data["bad"] = "six"

	assert.Equal(t, 3, store.GetInt("int64"))
	assert.Equal(t, 4, store.GetInt("int"))
	assert.Equal(t, 5, store.GetInt("float"))
	assert.Equal(t, 6, store.GetInt("string"))
	assert.Zero(t, store.GetInt("bad"))
	assert.Zero(t, store.GetInt("missing"))
}

func TestConfigStore_GetBool(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	store.data["yes"] = true
	store.data["str"] = "true"
	store.data["num"] = int64(1)

	assert.True(t, store.GetBool("yes"))
	assert.True(t, store.GetBool("str"))
	assert.False(t, store.GetBool("num"))
	assert.False(t, store.GetBool("missing"))
}

func TestConfigStore_GetStringSlice(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	store.data["any"] = []any{"headers", 3, "size"}
	store.data["csv"] = "headers, size"
	store.data["empty"] = ""

	assert.Equal(t, []string{"headers", "size"}, store.GetStringSlice("any"))
	assert.Equal(t, []string{"headers", "size"}, store.GetStringSlice("csv"))
	assert.Nil(t, store.GetStringSlice("empty"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_Save_WriteFileError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("another", "value"))
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.api_key", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("retrieval.top_k", n)
			_ = store.GetInt("retrieval.top_k")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("retrieval.top_k")
	assert.True(t, ok)
}

func TestNestMap(t *testing.T) {
	flat := map[string]any{
		"a":     1,
		"a.b":   2,
		"c.d.e": "x",
		"c.f":   true,
	}

	nested := nestMap(flat)

	assert.Equal(t, 1, nested["a"])
	assert.Equal(t, 2, nested["a.b"])
	c, ok := nested["c"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, c["f"])
	d, ok := c["d"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", d["e"])

	assert.Equal(t, flat, flattenMap(map[string]any{
		"a":   1,
		"a.b": 2,
		"c":   map[string]any{"d": map[string]any{"e": "x"}, "f": true},
	}, ""))
}
