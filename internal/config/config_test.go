/*
Copyright 2025 Opal Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Engine.OptimizeDistinct)
	assert.True(t, cfg.Engine.SelectForUpdateMvcc)
	assert.True(t, cfg.Engine.CaseInsensitiveIdentifiers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opal.yaml")
	content := []byte(`
engine:
  optimize_distinct: false
  select_for_update_mvcc: false
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Engine.OptimizeDistinct)
	assert.False(t, cfg.Engine.SelectForUpdateMvcc)
	assert.True(t, cfg.Engine.MVStore, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Log.Level)

	settings := cfg.Settings()
	assert.False(t, settings.OptimizeDistinct)
	assert.False(t, settings.SelectForUpdateMvcc)
	assert.True(t, settings.MVStore)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("OPAL_LOG_LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInvalidLogLevelRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
