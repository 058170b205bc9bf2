package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/internal/prompts"
	"livecast/internal/store"
)

type fakeSource struct {
	pages      map[string]string
	rebuildErr error
	secondary  string
	queryErr   error
	gotQueries []string
	gotK       int
}

func (s *fakeSource) RebuildPageContent(ctx context.Context, db *store.Database) (string, error) {
	if s.rebuildErr != nil {
		return "", s.rebuildErr
	}
	return s.pages[db.ID], nil
}

func (s *fakeSource) FindRelevantDocsQueries(ctx context.Context, queries []string, dbs []*store.Database, k int) (string, []map[string]string, error) {
	s.gotQueries = queries
	s.gotK = k
	return s.secondary, nil, s.queryErr
}

type recordingClient struct {
	answer string
	err    error
	system string
	user   string
}

func (c *recordingClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	c.system, c.user = system, user
	return c.answer, c.err
}

func testDatabases() []*store.Database {
	return []*store.Database{
		{ID: "jtwc", Metadata: map[string]string{"website": "https://jtwc.example/prog.txt"}},
		nil,
		{ID: "pagasa", Metadata: map[string]string{"website": "https://pagasa.example"}},
	}
}

func TestEvaluateUsesPrimaryAndSecondaryInfo(t *testing.T) {
	catalog, err := prompts.Default()
	require.NoError(t, err)

	source := &fakeSource{
		pages:     map[string]string{"pagasa": "full pagasa bulletin"},
		secondary: "winds 150 knots, heading west",
	}
	client := &recordingClient{answer: "ACCURATE\nAll claims match the bulletin."}

	v, err := New(client, source, catalog, 3).Evaluate(context.Background(), "the script", "https://pagasa.example", testDatabases())
	require.NoError(t, err)

	assert.Equal(t, Verdict{Accurate: true, Reason: "All claims match the bulletin."}, v)
	assert.Equal(t, "the script", client.user)
	assert.Contains(t, client.system, "(full pagasa bulletin)")
	assert.Contains(t, client.system, "(winds 150 knots, heading west)")
	assert.Equal(t, AccuracyMetrics, source.gotQueries)
	assert.Equal(t, 3, source.gotK)
}

func TestEvaluateFallsBackWhenPrimaryMissing(t *testing.T) {
	catalog, err := prompts.Default()
	require.NoError(t, err)

	client := &recordingClient{answer: "INACCURATE: wrong landfall time"}

	j := New(client, &fakeSource{secondary: "s"}, catalog, 0)
	v, err := j.Evaluate(context.Background(), "script", "https://unknown.example", testDatabases())
	require.NoError(t, err)
	assert.False(t, v.Accurate)
	assert.Equal(t, "wrong landfall time", v.Reason)
	assert.Contains(t, client.system, PrimaryFallback)

	// Rebuild failure also falls back.
	source := &fakeSource{rebuildErr: store.ErrDatabaseNotFound}
	_, err = New(client, source, catalog, 3).Evaluate(context.Background(), "script", "https://pagasa.example", testDatabases())
	require.NoError(t, err)
	assert.Contains(t, client.system, PrimaryFallback)
}

func TestEvaluateErrors(t *testing.T) {
	catalog, err := prompts.Default()
	require.NoError(t, err)

	_, err = New(&recordingClient{}, &fakeSource{queryErr: errors.New("embed down")}, catalog, 3).
		Evaluate(context.Background(), "script", "https://pagasa.example", testDatabases())
	assert.ErrorContains(t, err, "embed down")

	_, err = New(&recordingClient{err: errors.New("llm down")}, &fakeSource{}, catalog, 3).
		Evaluate(context.Background(), "script", "https://pagasa.example", testDatabases())
	assert.ErrorContains(t, err, "llm down")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		answer string
		want   Verdict
	}{
		{"ACCURATE", Verdict{Accurate: true, Reason: ""}},
		{"accurate - matches sources", Verdict{Accurate: true, Reason: "matches sources"}},
		{"  Accurate.\nFine.", Verdict{Accurate: true, Reason: "Fine."}},
		{"INACCURATE\nwind speed wrong", Verdict{Accurate: false, Reason: "wind speed wrong"}},
		{"The script is fine", Verdict{Accurate: false, Reason: "The script is fine"}},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.answer))
		})
	}
}
