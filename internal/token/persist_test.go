package token

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEnvVar = "TOKENGATE_TEST_TOKENS_JSON"

func sampleRecords(t *testing.T) map[string]*Record {
	t.Helper()
	created := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)
	expires := created.Add(30 * 24 * time.Hour)
	lastUsed := created.Add(48 * time.Hour)
	return map[string]*Record{
		"alpha": {
			CreatedAt:   created,
			ExpiresAt:   &expires,
			Active:      true,
			Description: "monthly",
			UsedCount:   7,
			LastUsed:    &lastUsed,
		},
		"beta": {
			CreatedAt: created,
			Active:    false,
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	records := sampleRecords(t)

	data, err := encodeSnapshot(records)
	require.NoError(t, err)

	decoded, err := decodeSnapshot(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	alpha := decoded["alpha"]
	require.NotNil(t, alpha)
	assert.True(t, records["alpha"].CreatedAt.Equal(alpha.CreatedAt))
	require.NotNil(t, alpha.ExpiresAt)
	assert.True(t, records["alpha"].ExpiresAt.Equal(*alpha.ExpiresAt))
	assert.True(t, alpha.Active)
	assert.Equal(t, "monthly", alpha.Description)
	assert.Equal(t, int64(7), alpha.UsedCount)
	require.NotNil(t, alpha.LastUsed)
	assert.True(t, records["alpha"].LastUsed.Equal(*alpha.LastUsed))

	beta := decoded["beta"]
	require.NotNil(t, beta)
	assert.Nil(t, beta.ExpiresAt, "null expires_at survives the round trip")
	assert.Nil(t, beta.LastUsed)
	assert.False(t, beta.Active)
	assert.Equal(t, int64(0), beta.UsedCount)
}

func TestSnapshotWireShape(t *testing.T) {
	data, err := encodeSnapshot(sampleRecords(t))
	require.NoError(t, err)

	var wire map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	beta := wire["beta"]
	require.NotNil(t, beta)
	for _, field := range []string{"created_at", "expires_at", "active", "description", "used_count", "last_used"} {
		assert.Contains(t, beta, field)
	}
	assert.Nil(t, beta["expires_at"])
	assert.Nil(t, beta["last_used"])
	_, isString := beta["created_at"].(string)
	assert.True(t, isString, "timestamps are serialized as strings")
}

func TestLoadPrefersEnvironmentSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	fileData, err := encodeSnapshot(map[string]*Record{
		"from-file": {CreatedAt: time.Now(), Active: true},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fileData, 0600))

	envData, err := encodeSnapshot(map[string]*Record{
		"from-env": {CreatedAt: time.Now(), Active: true},
	})
	require.NoError(t, err)
	t.Setenv(testEnvVar, string(envData))

	p := NewPersister(path, testEnvVar, nil)
	records, source := p.Load(context.Background())

	assert.Equal(t, SourceEnv, source)
	assert.Contains(t, records, "from-env")
	assert.NotContains(t, records, "from-file", "file is ignored when the env snapshot parses")
}

func TestLoadFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")

	fileData, err := encodeSnapshot(map[string]*Record{
		"from-file": {CreatedAt: time.Now(), Active: true},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fileData, 0600))

	t.Setenv(testEnvVar, "{not json")

	p := NewPersister(path, testEnvVar, nil)
	records, source := p.Load(context.Background())

	assert.Equal(t, SourceFile, source)
	assert.Contains(t, records, "from-file")
}

func TestLoadStartsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, path string)
	}{
		{"missing file", func(t *testing.T, path string) {}},
		{"unparsable file", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		}},
		{"bad timestamps", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(`{"x":{"created_at":"not a time","active":true,"description":"","used_count":0,"expires_at":null,"last_used":null}}`), 0600))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tokens.json")
			tt.prepare(t, path)

			p := NewPersister(path, testEnvVar, nil)
			records, source := p.Load(context.Background())

			assert.Equal(t, SourceEmpty, source)
			assert.Empty(t, records)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	p := NewPersister(path, testEnvVar, nil)

	require.NoError(t, p.Save(context.Background(), sampleRecords(t)))

	records, source := p.Load(context.Background())
	assert.Equal(t, SourceFile, source)
	assert.Len(t, records, 2)
}

func TestSaveFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0700) })

	p := NewPersister(filepath.Join(dir, "tokens.json"), testEnvVar, nil)
	err := p.Save(context.Background(), sampleRecords(t))
	assert.Error(t, err, "save reports the failure for observability")

	// The manager treats the failure as a warning: mutations keep working
	// against the in-memory store.
	m := NewManager(NewStore(), p, nil, nil)
	tok, err := m.Create(context.Background(), CreateRequest{Description: "survives read-only disk"})
	require.NoError(t, err)

	valid, _ := m.Validate(context.Background(), tok)
	assert.True(t, valid)
	info, _ := m.Get(tok)
	assert.Equal(t, int64(1), info.UsedCount)
}
