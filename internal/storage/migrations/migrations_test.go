package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDialectsHaveMatchingVersions(t *testing.T) {
	sqlite, err := fs.Glob(files, "sqlite/*.sql")
	require.NoError(t, err)
	postgres, err := fs.Glob(files, "postgres/*.sql")
	require.NoError(t, err)

	base := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = p[strings.Index(p, "/")+1:]
		}
		return out
	}
	assert.NotEmpty(t, sqlite)
	assert.Equal(t, base(sqlite), base(postgres))
}

// Percentages are stored exactly on every backend; a scale on the Postgres
// column would round values SQLite keeps as text.
func TestPostgresPercentageIsUnconstrained(t *testing.T) {
	body, err := fs.ReadFile(files, "postgres/0001_init.up.sql")
	require.NoError(t, err)

	column := regexp.MustCompile(`(?m)^\s*percentage\s+([A-Z]+(\([^)]*\))?)`).FindSubmatch(body)
	require.NotNil(t, column, "percentage column not found")
	assert.Equal(t, "NUMERIC", string(column[1]))
}
