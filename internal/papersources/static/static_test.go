package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/domain"
	"github.com/dport96/ISERN-Graph/internal/papersources"
)

const yamlFixture = `publications:
  - member: dan-port
    id: doi:10.1/a
    title: Value-Based Software Engineering
    year: 2005
    authors: [Dan Port, Barry Boehm]
  - member: dan-port
    doi: https://doi.org/10.1/B
    title: Risk
    authors: [D. Port, Tim Menzies]
  - member: tim-menzies
    title: Data Mining Static Code
    authors: [Tim Menzies]
`

const jsonFixture = `{"publications":[{"member":"dan-port","dblp_key":"conf/icse/PortB05","title":"VBSE","authors":["Dan Port"]}]}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		src, err := Load(writeFile(t, "pubs.yaml", yamlFixture))
		require.NoError(t, err)
		assert.Equal(t, 3, src.Len())
		assert.Equal(t, "static", src.Name())
		assert.True(t, src.IsEnabled())

		pubs, err := papersources.Collect(src.Publications(context.Background(), domain.Member{ID: "dan-port"}), 0)
		require.NoError(t, err)
		require.Len(t, pubs, 2)
		assert.Equal(t, domain.PublicationID("doi:10.1/a"), pubs[0].ID)
		assert.Equal(t, []string{"Dan Port", "Barry Boehm"}, pubs[0].Authors)
		assert.Equal(t, domain.PublicationID("doi:10.1/b"), pubs[1].ID)

		pubs, err = papersources.Collect(src.Publications(context.Background(), domain.Member{ID: "tim-menzies"}), 0)
		require.NoError(t, err)
		require.Len(t, pubs, 1)
		assert.Equal(t, domain.PublicationID("local:tim-menzies/data-mining-static-code"), pubs[0].ID)
	})

	t.Run("json", func(t *testing.T) {
		src, err := Load(writeFile(t, "pubs.json", jsonFixture))
		require.NoError(t, err)
		pubs, err := papersources.Collect(src.Publications(context.Background(), domain.Member{ID: "dan-port"}), 0)
		require.NoError(t, err)
		require.Len(t, pubs, 1)
		assert.Equal(t, domain.PublicationID("dblp:conf/icse/PortB05"), pubs[0].ID)
	})

	t.Run("unknown member yields nothing", func(t *testing.T) {
		src := New(nil)
		pubs, err := papersources.Collect(src.Publications(context.Background(), domain.Member{ID: "ghost"}), 0)
		require.NoError(t, err)
		assert.Empty(t, pubs)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)

		_, err = Load(writeFile(t, "pubs.txt", "x"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = Load(writeFile(t, "pubs.json", "{"))
		assert.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := papersources.Collect(New(nil).Publications(ctx, domain.Member{ID: "x"}), 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
