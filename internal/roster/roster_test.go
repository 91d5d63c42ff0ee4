package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dport96/ISERN-Graph/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_LegacyJSON(t *testing.T) {
	path := writeFile(t, "isern_members.json", `{
  "isern_members": ["Victor Basili", "Dieter Rombach", "Dan Port", {"display_name": "Tim Menzies", "aliases": ["Timothy Menzies"]}],
  "metadata": {"last_updated": "2024-05-01", "total_members": 4}
}`)

	loaded, err := LoadFile(path, []string{"Victor Basili", "dieter-rombach", "Koji Torii"})
	require.NoError(t, err)

	r := loaded.Roster
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []domain.MemberID{"dan-port", "dieter-rombach", "tim-menzies", "victor-basili"}, r.IDs())
	assert.Equal(t, []domain.MemberID{"dieter-rombach", "victor-basili"}, r.Founders())
	assert.Equal(t, []string{"Koji Torii"}, loaded.UnknownFounders)
	assert.Equal(t, "2024-05-01", loaded.Metadata.LastUpdated)

	tim, ok := r.Lookup("tim-menzies")
	require.True(t, ok)
	assert.Equal(t, []string{"Timothy Menzies"}, tim.Aliases)
}

func TestLoadFile_StructuredYAML(t *testing.T) {
	path := writeFile(t, "roster.yaml", `members:
  - display_name: Victor Basili
    founder: true
  - id: port
    display_name: "Dan  Port"
    aliases: [Daniel Port]
    affiliation: University of Hawaii
  - Jürgen Münch
`)

	loaded, err := LoadFile(path, nil)
	require.NoError(t, err)

	r := loaded.Roster
	assert.Equal(t, []domain.MemberID{"jurgen-munch", "port", "victor-basili"}, r.IDs())
	assert.Equal(t, []domain.MemberID{"victor-basili"}, r.Founders())

	port, ok := r.Lookup("port")
	require.True(t, ok)
	assert.Equal(t, "Dan Port", port.DisplayName)
	assert.Equal(t, "University of Hawaii", port.Affiliation)
	assert.Empty(t, loaded.UnknownFounders)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{name: "empty", file: File{}},
		{name: "blank name", file: File{Members: []Entry{{DisplayName: "   "}}}},
		{name: "id with space", file: File{Members: []Entry{{ID: "dan port", DisplayName: "Dan Port"}}}},
		{name: "punctuation only", file: File{Members: []Entry{{DisplayName: "--"}}}},
		{name: "duplicate explicit ids", file: File{Members: []Entry{{ID: "x", DisplayName: "A"}, {ID: "x", DisplayName: "B"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(&tt.file, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRosterInvalid)
		})
	}
}

func TestBuild_SlugCollision(t *testing.T) {
	loaded, err := Build(&File{IsernMembers: []Entry{{DisplayName: "Wei Wang"}, {DisplayName: "Wei  Wang"}, {DisplayName: "Wéi Wang"}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.MemberID{"wei-wang", "wei-wang-2", "wei-wang-3"}, loaded.Roster.IDs())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("x"), ".txt")
	assert.ErrorIs(t, err, domain.ErrRosterInvalid)

	_, err = Parse([]byte("{"), ".json")
	assert.ErrorIs(t, err, domain.ErrRosterInvalid)

	_, err = Parse([]byte("members: [\n"), ".yml")
	assert.ErrorIs(t, err, domain.ErrRosterInvalid)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	tests := map[string]domain.MemberID{
		"Victor Basili":           "victor-basili",
		"Fabio Q.B. da Silva":     "fabio-q-b-da-silva",
		"  Jürgen Münch ":         "jurgen-munch",
		"Daniel Méndez Fernández": "daniel-mendez-fernandez",
		"O'Brien, Pat":            "obrien-pat",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestDefaultFounders(t *testing.T) {
	assert.Len(t, DefaultFounders, 6)
	assert.Contains(t, DefaultFounders, "Victor Basili")
}
