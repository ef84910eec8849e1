package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
database:
  dsn: postgres://scanner@db:5432/props
scheduler:
  cronExpression: "15 2 * * *"
  timezone: Europe/London
ingestion:
  requestDelay: 250ms
  staleAfter: 96h
  batchLimit: 50
registers:
  - name: leeds
    council: Leeds City Council
    url: https://council.example/hmo-register
    scanner: table
    options:
      pageParam: page
areas:
  - name: Hyde Park
    postcode: LS6 1AB
    listingType: rent
providers:
  listings:
    baseUrl: https://listings.example/api
  valuation:
    baseUrl: https://valuation.example/api
    cacheTtl: 12h
  epc:
    email: ops@example.com
notifications:
  telegram:
    chatId: "-100123"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	t.Setenv(listingsKeyEnv, "listings-secret")
	t.Setenv(mapsKeyEnv, "maps-secret")
	t.Setenv(telegramTokenEnv, "bot-token")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://scanner@db:5432/props", cfg.Database.DSN)
	assert.Equal(t, "15 2 * * *", cfg.Scheduler.CronExpression)
	assert.Equal(t, "30 4 * * *", cfg.Scheduler.SweepExpression)
	assert.Equal(t, "Europe/London", cfg.Scheduler.Location().String())

	assert.Equal(t, 250*time.Millisecond, cfg.Ingestion.RequestDelay)
	assert.Equal(t, 96*time.Hour, cfg.Ingestion.StaleAfter)
	assert.Equal(t, 168*time.Hour, cfg.Ingestion.RefreshAfter)
	assert.Equal(t, 50, cfg.Ingestion.BatchLimit)
	assert.Equal(t, 50, cfg.Ingestion.PageSize)

	require.Len(t, cfg.Registers, 1)
	assert.Equal(t, "page", cfg.Registers[0].Options["pageParam"])
	require.Len(t, cfg.Areas, 1)
	assert.Equal(t, "rent", cfg.Areas[0].ListingType)

	assert.Equal(t, "listings-secret", cfg.Providers.Listings.APIKey)
	assert.Equal(t, 12*time.Hour, cfg.Providers.Valuation.CacheTTL)
	assert.Equal(t, "https://epc.opendatacommunities.org/api/v1", cfg.Providers.EPC.BaseURL)
	assert.Equal(t, "ops@example.com", cfg.Providers.EPC.Email)
	assert.Equal(t, "maps-secret", cfg.Providers.Geocoding.APIKey)
	assert.Equal(t, "bot-token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "-100123", cfg.Notifications.Telegram.ChatID)
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.Equal(t, 72*time.Hour, cfg.Ingestion.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.RunTimeout)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Empty(t, cfg.Registers)
}

func TestLoadFileRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"register without url": `
registers:
  - name: leeds
    council: Leeds
`,
		"unknown scanner": `
registers:
  - name: leeds
    council: Leeds
    url: https://council.example/r
    scanner: pdf
`,
		"unknown driver": `
database:
  driver: mysql
`,
		"bad listing type": `
areas:
  - postcode: LS6 1AB
    listingType: lease
`,
		"zero page size": `
ingestion:
  pageSize: 0
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config: invalid")
		})
	}
}

func TestLoadFileReportsUnreadableFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadFile(writeConfig(t, "ingestion: [not, a, map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	t.Setenv(databaseDSNEnv, "")
	cfg, err := LoadFile(writeConfig(t, "database:\n  driver: memory\n  dsn: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
}
