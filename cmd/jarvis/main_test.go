package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/jarvis/jarvis/config"
)

func TestGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{4, "Good night"},
		{5, "Good morning"},
		{11, "Good morning"},
		{12, "Good afternoon"},
		{17, "Good evening"},
		{20, "Good evening"},
		{21, "Good night"},
		{0, "Good night"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, greeting(tt.hour), "hour %d", tt.hour)
	}
}

func TestExternalContext(t *testing.T) {
	now := time.Date(2026, time.March, 9, 13, 30, 0, 0, time.UTC)

	ext := externalContext(config.AssistantConfig{Name: "Friday", Timezone: "UTC"}, now)
	assert.Equal(t, "Friday", ext.AssistantName)
	assert.Equal(t, "UTC", ext.Timezone)
	assert.Equal(t, "Monday, March 09 2026 at 01:30 PM", ext.Now)
	assert.Equal(t, "Good afternoon", ext.Greeting)

	ext = externalContext(config.AssistantConfig{Timezone: "Not/AZone"}, now)
	assert.Equal(t, "UTC", ext.Timezone)
}

func TestLoadScene(t *testing.T) {
	dir := t.TempDir()
	object := `{"name":"Cube","type":"box","geometry":{"width":1,"height":1,"depth":1},` +
		`"position":[0,0,0],"rotation":[0,0,0],"scale":[1,1,1],` +
		`"material":{"color":"#ffffff","metalness":0,"roughness":1,"emissive":"#000000","emissiveIntensity":0,"opacity":1,"transparent":false}}`

	bare := filepath.Join(dir, "bare.json")
	require.NoError(t, os.WriteFile(bare, []byte("["+object+"]"), 0o644))
	objects, err := loadScene(bare)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "Cube", objects[0].Name)

	wrapped := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"objects":[`+object+`],"count":1,"success":true}`), 0o644))
	objects, err = loadScene(wrapped)
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`[{"name":"x"}]`), 0o644))
	_, err = loadScene(broken)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n  b", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
