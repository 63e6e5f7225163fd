package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/edudati/openheal-research/repositories"
	"github.com/edudati/openheal-research/services"
	"github.com/edudati/openheal-research/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "update-matches", "create-researcher"})

	um, _, err := root.Find([]string{"update-matches"})
	require.NoError(t, err)
	for _, flag := range []string{"participant", "study", "dry-run", "concurrency"} {
		assert.NotNil(t, um.Flags().Lookup(flag), flag)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestResolvePassword(t *testing.T) {
	opts := &createResearcherOptions{passwordStdin: true}
	require.NoError(t, resolvePassword(opts, strings.NewReader("from-stdin\n")))
	assert.Equal(t, "from-stdin", opts.input.Password)

	opts = &createResearcherOptions{passwordStdin: true}
	opts.input.Password = "flag"
	assert.Error(t, resolvePassword(opts, strings.NewReader("x\n")))

	t.Setenv("OPENHEAL_RESEARCHER_PASSWORD", "from-env")
	opts = &createResearcherOptions{}
	require.NoError(t, resolvePassword(opts, strings.NewReader("")))
	assert.Equal(t, "from-env", opts.input.Password)

	t.Setenv("OPENHEAL_RESEARCHER_PASSWORD", "")
	assert.Error(t, resolvePassword(&createResearcherOptions{}, strings.NewReader("")))
}

func TestRunCreateResearcher(t *testing.T) {
	ctx := context.Background()
	local := testutil.OpenLocal(t)
	testutil.AddStudy(t, local, "s-1", "alpha")
	researchers := repositories.NewPostgresResearcherRepository(local)
	auth := services.NewAuthService(local, researchers, repositories.NewPostgresStudyRepository(local), "secret",
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var out bytes.Buffer
	err := runCreateResearcher(ctx, &out, auth, services.CreateResearcherInput{
		Username: "maria", Password: "secret-pass", StudyCodes: []string{"alpha"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "Created researcher maria ("), out.String())

	err = runCreateResearcher(ctx, &out, auth, services.CreateResearcherInput{
		Username: "joao", Password: "secret-pass", StudyCodes: []string{"missing"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid researcher")

	err = runCreateResearcher(ctx, &out, auth, services.CreateResearcherInput{Username: "maria", Password: "secret-pass"})
	assert.ErrorIs(t, err, services.ErrResearcherUsernameTaken)
}
