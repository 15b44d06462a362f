package db_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/db"
	"jobmate/job-ingest/internal/model"
)

// fakeQuerier records calls and serves canned rows.
type fakeQuerier struct {
	rows     [][]any
	queryErr error
	rowID    string
	rowErr   error
	args     [][]any
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.args = append(f.args, args)
	return fakeRow{id: f.rowID, err: f.rowErr}
}

type fakeRow struct {
	id  string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.id
	return nil
}

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d columns into %d targets", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *[]string:
			*d = v.([]string)
		case *[]byte:
			*d = v.([]byte)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

func TestLoadSearchConfigs(t *testing.T) {
	q := &fakeQuerier{rows: [][]any{
		{"cfg-1", "u1", "grad roles", "github", 120, []string{}, []byte(`{"keywords":["go"],"remoteOnly":true}`), true},
		{"cfg-2", "u2", "", "lever", 30, []string{"https://jobs.lever.co/acme/1"}, []byte(`{}`), false},
	}}

	configs, err := db.LoadSearchConfigs(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "cfg-1", configs[0].ID)
	assert.Equal(t, model.SourceGitHub, configs[0].Source)
	assert.Equal(t, 120, configs[0].IntervalMinutes)
	assert.Equal(t, []string{"go"}, configs[0].Criteria.Keywords)
	assert.True(t, configs[0].Criteria.RemoteOnly)
	assert.True(t, configs[0].Enabled)

	assert.Equal(t, model.SourceLever, configs[1].Source)
	assert.Equal(t, []string{"https://jobs.lever.co/acme/1"}, configs[1].Feeds)
	assert.False(t, configs[1].Enabled)
}

func TestLoadSearchConfigs_BadCriteria(t *testing.T) {
	q := &fakeQuerier{rows: [][]any{
		{"cfg-1", "u1", "x", "github", 60, []string{}, []byte(`{not json`), true},
	}}

	_, err := db.LoadSearchConfigs(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cfg-1")
}

func TestLoadSearchConfigs_QueryError(t *testing.T) {
	q := &fakeQuerier{queryErr: errors.New("connection refused")}

	_, err := db.LoadSearchConfigs(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query search_configs")
}

func TestPostingStore_Save(t *testing.T) {
	q := &fakeQuerier{rowID: "feed-1"}
	store := db.NewPostingStore(q, zap.NewNop())

	p := model.Posting{Title: "Go Engineer", Company: "Acme", PostingURL: "https://boards.greenhouse.io/acme/jobs/1"}
	id, err := store.Save(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "feed-1", id)

	require.Len(t, q.args, 1)
	args := q.args[0]
	assert.Equal(t, "", args[0], "manual imports have no search config")
	assert.Contains(t, args[1], `"title":"Go Engineer"`)
	assert.Equal(t, p.PostingURL, args[2])
	assert.Equal(t, p.Fingerprint(), args[3])
}

func TestPostingStore_SaveAllSkipsFailures(t *testing.T) {
	q := &fakeQuerier{rowErr: errors.New("unique violation")}
	store := db.NewPostingStore(q, zap.NewNop())

	saved := store.SaveAll(context.Background(), "cfg-1", []model.Posting{{Title: "A"}, {Title: "B"}})
	assert.Equal(t, 0, saved)
	assert.Len(t, q.args, 2)
	assert.Equal(t, "cfg-1", q.args[0][0])
}

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "https://a.example/1", db.SourceKey(model.Posting{PostingURL: " https://a.example/1 ", ApplicationURL: "https://b.example"}))
	assert.Equal(t, "https://b.example", db.SourceKey(model.Posting{ApplicationURL: "https://b.example"}))

	p := model.Posting{Title: "Go", Company: "Acme"}
	key := db.SourceKey(p)
	assert.True(t, strings.HasPrefix(key, "fingerprint:"))
	assert.Equal(t, "fingerprint:"+p.Fingerprint(), key)
}
