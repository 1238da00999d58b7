package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/spaship/pkg/navigation"
)

func loc(path string) navigation.Location {
	return navigation.MustParse("https://shell.example" + path)
}

func TestCompile(t *testing.T) {
	tests := []struct {
		pattern string
		exact   bool
		path    string
		want    bool
	}{
		{"/users/:id", false, "/users/7", true},
		{"/users/:id", false, "/users/7/", true},
		{"/users/:id", false, "/users", false},
		{"/users/:id/profile", false, "/users/7/profile", true},
		{"/users/:id/profile", false, "/users/7/settings", false},
		{"/users", false, "/users/7", true},
		{"/users", false, "/usersettings", false},
		{"/users", false, "/USERS", true},
		{"/users", false, "/users#tab", true},
		{"/users", false, "/users?x=1", true},
		{"users", false, "/users", true},
		{"/", false, "/anything/at/all", true},
		{"/users/", false, "/users/7", true},
		{"/users", true, "/users", true},
		{"/users", true, "/users/", true},
		{"/users", true, "/users/7", false},
		{"/users/:id", true, "/users/7", true},
		{"/users/:id", true, "/users/7/x", false},
		{"/a.b", false, "/axb", false},
		{"/#/app", false, "/#/app/child", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			pred, err := Compile(tt.pattern, tt.exact)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred(loc(tt.path)))
		})
	}
}

func TestCompileAll(t *testing.T) {
	pred, err := CompileAll([]string{"/a", "/b/:id"}, false)
	require.NoError(t, err)

	assert.True(t, pred(loc("/a")))
	assert.True(t, pred(loc("/b/1")))
	assert.False(t, pred(loc("/c")))
}

func TestAny_Empty(t *testing.T) {
	assert.False(t, Any()(loc("/")))
}
