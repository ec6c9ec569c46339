package histdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

const goodCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,100.0,101.5,99.0,100.5,120000
2024-01-03,100.5,102.0,100.0,101.25,98000
2024-01-04,101.25,101.3,97.5,98.0,150000
`

func writeCSV(t *testing.T, dir, symbol, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(content), 0o644))
}

func TestLoadFileParsesBars(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL", goodCSV)

	bars, err := LoadFile(filepath.Join(dir, "AAPL.csv"), "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, schema.Day("2024-01-02"), bars[0].Day)
	assert.True(t, bars[0].Close.Equal(decimal.NewFromFloat(100.5)))
	assert.EqualValues(t, 120000, bars[0].Volume)
	assert.Equal(t, schema.Day("2024-01-04"), bars[2].Day)
}

func TestLoadFileRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad header": strings.Replace(goodCSV, "Date,", "Timestamp,", 1),
		"unordered dates": `Date,Open,High,Low,Close,Volume
2024-01-03,100,100,100,100,1000
2024-01-02,100,100,100,100,1000
`,
		"duplicate date": `Date,Open,High,Low,Close,Volume
2024-01-02,100,100,100,100,1000
2024-01-02,100,100,100,100,1000
`,
		"bad price": `Date,Open,High,Low,Close,Volume
2024-01-02,abc,100,100,100,1000
`,
		"zero close": `Date,Open,High,Low,Close,Volume
2024-01-02,100,100,100,0,1000
`,
		"bad volume": `Date,Open,High,Low,Close,Volume
2024-01-02,100,100,100,100,1.5
`,
		"missing column": `Date,Open,High,Low,Close,Volume
2024-01-02,100,100,100,100
`,
		"no rows": `Date,Open,High,Low,Close,Volume
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeCSV(t, dir, "AAPL", content)
			_, err := LoadFile(filepath.Join(dir, "AAPL.csv"), "AAPL")
			assert.Error(t, err)
		})
	}
}

func TestLoadDirSkipsUnregisteredSymbols(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL", goodCSV)
	writeCSV(t, dir, "TSLA", goodCSV)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Add("AAPL"))

	series, err := LoadDir(dir, registry)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Len(t, series["AAPL"], 3)
}

func TestLoadDirFailsWhenNothingLoads(t *testing.T) {
	registry := schema.NewRegistry()
	require.NoError(t, registry.Add("AAPL"))

	_, err := LoadDir(t.TempDir(), registry)
	assert.True(t, errors.Is(err, ErrNoSeries))
}
