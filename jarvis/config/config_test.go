package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/jarvis/jarvis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))

	// Keep ambient credentials out of the assertions.
	suite.T().Setenv("GROQ_API_KEY", "")
	suite.T().Setenv("JARVIS_LLM_API_KEY", "")
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultAssistantName, cfg.Assistant.Name)
	assert.Equal(suite.T(), 10, cfg.Assistant.MaxTurns)
	assert.Equal(suite.T(), 800, cfg.Assistant.SummaryMaxLength)
	assert.Equal(suite.T(), 400, cfg.Assistant.SummaryTrimLength)

	assert.Equal(suite.T(), "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(suite.T(), "llama-3.3-70b-versatile", cfg.LLM.Model)
	assert.Equal(suite.T(), 1024, cfg.LLM.MaxTokens)
	assert.InDelta(suite.T(), 0.7, cfg.LLM.Temperature, 0.0001)
	assert.Equal(suite.T(), 15*time.Second, cfg.LLM.Timeout)
	assert.Empty(suite.T(), cfg.LLM.APIKey)

	assert.Equal(suite.T(), cfg.LLM.Model, cfg.Scene.Model)
	assert.Equal(suite.T(), 8000, cfg.Scene.MaxTokens)
	assert.Equal(suite.T(), 60*time.Second, cfg.Scene.Timeout)
	assert.Equal(suite.T(), 4000, cfg.Scene.SceneCharBudget)
	assert.Equal(suite.T(), 20, cfg.Scene.FallbackObjects)

	assert.Equal(suite.T(), []string{"ddg_instant", "ddg_lite", "ddg_html"}, cfg.Search.Providers)
	assert.Equal(suite.T(), 4, cfg.Search.MaxResults)
	assert.Equal(suite.T(), 8*time.Second, cfg.Search.Timeout)

	assert.Equal(suite.T(), 50, cfg.Knowledge.MaxEntries)
	assert.Equal(suite.T(), 1000, cfg.Knowledge.MaxContent)
	assert.Equal(suite.T(), "oldest", cfg.Knowledge.Eviction)

	assert.True(suite.T(), cfg.Database.Enabled)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.Database.DSN)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
assistant:
  name: "FRIDAY"
  max_turns: 4
llm:
  base_url: "http://localhost:8080/v1/"
  model: "local-model"
  timeout: "3s"
scene:
  model: "scene-model"
knowledge:
  eviction: "lexical"
database:
  enabled: false
`
	configFile := filepath.Join(suite.tempDir, "test-config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "FRIDAY", cfg.Assistant.Name)
	assert.Equal(suite.T(), 4, cfg.Assistant.MaxTurns)
	assert.Equal(suite.T(), "http://localhost:8080/v1", cfg.LLM.BaseURL)
	assert.Equal(suite.T(), "local-model", cfg.LLM.Model)
	assert.Equal(suite.T(), 3*time.Second, cfg.LLM.Timeout)
	assert.Equal(suite.T(), "scene-model", cfg.Scene.Model)
	assert.Equal(suite.T(), "lexical", cfg.Knowledge.Eviction)
	assert.False(suite.T(), cfg.Database.Enabled)
	// untouched sections keep their defaults
	assert.Equal(suite.T(), 4, cfg.Search.MaxResults)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("GROQ_API_KEY", "gsk-from-env")
	suite.T().Setenv("JARVIS_SEARCH_MAX_RESULTS", "7")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "gsk-from-env", cfg.LLM.APIKey)
	assert.Equal(suite.T(), 7, cfg.Search.MaxResults)
}

func (suite *ConfigTestSuite) TestInvalidConfigFile() {
	configFile := filepath.Join(suite.tempDir, "broken.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte("assistant: [unclosed"), 0o644))

	_, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestNormalizeRepairsSummaryLengths() {
	cfg := Config{Assistant: AssistantConfig{SummaryMaxLength: 100, SummaryTrimLength: 300}}
	cfg.normalize()

	assert.Equal(suite.T(), 10, cfg.Assistant.MaxTurns)
	assert.Equal(suite.T(), 50, cfg.Assistant.SummaryTrimLength)
	assert.Equal(suite.T(), 50, cfg.Knowledge.MaxEntries)
}
