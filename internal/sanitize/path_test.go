package sanitize

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContentRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.cs")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	got, err := ValidateContentRoot(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = ValidateContentRoot("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = ValidateContentRoot(dir + "/../" + filepath.Base(dir))
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = ValidateContentRoot(file)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = ValidateContentRoot(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestIdentifier(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

	tests := []struct {
		in   string
		want string
	}{
		{"/srv/StudentManagement", "srv_studentmanagement"},
		{"My Project!", "my_project"},
		{"a__b", "a_b"},
		{"", DefaultIdentifier},
		{"!!!", DefaultIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Identifier(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, valid, got)
		})
	}
}

func TestIdentifier_LongNamesStayUnique(t *testing.T) {
	a := Identifier(strings.Repeat("a", 100) + "one")
	b := Identifier(strings.Repeat("a", 100) + "two")

	assert.LessOrEqual(t, len(a), MaxIdentifierLength)
	assert.LessOrEqual(t, len(b), MaxIdentifierLength)
	assert.NotEqual(t, a, b)
}
