package migrate

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslink.app/migrations"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Manager, sqlmock.Sqlmock, fstest.MapFS) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	files := fstest.MapFS{
		"0001_users.up.sql":   {Data: []byte("create table users (id text);\ncreate index users_idx on users (id);")},
		"0001_users.down.sql": {Data: []byte("drop table users;")},
		"0002_more.up.sql":    {Data: []byte("-- comment; not a statement\ninsert into t values ('a;b');")},
	}
	return NewManager(db, files, nil, WithClock(func() time.Time { return fixedNow })), mock, files
}

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	m, mock, _ := newMock(t)
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into t values ('a;b')")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_more.up.sql", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ran, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_more.up.sql"}, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpRollsBackFailedFile(t *testing.T) {
	m, mock, _ := newMock(t)
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index users_idx").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	ran, err := m.Up(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRevertsLatest(t *testing.T) {
	m, mock, _ := newMock(t)
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").WithArgs("0001_users.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := m.Down(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0001_users.up.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	m, mock, _ := newMock(t)
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := m.Down(context.Background())
	require.ErrorIs(t, err, ErrNothingApplied)
}

func TestPending(t *testing.T) {
	m, mock, _ := newMock(t)
	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))

	pending, err := m.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_more.up.sql"}, pending)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("create table a (x text default ';');\n-- drop table a;\n\ninsert into a values ('it''s');")
	assert.Equal(t, []string{
		"create table a (x text default ';')",
		"insert into a values ('it''s')",
	}, got)
}

func TestEmbeddedFilesArePaired(t *testing.T) {
	ups, err := collectSQL(migrations.SQL(), upSuffix)
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	downs, err := collectSQL(migrations.SQL(), downSuffix)
	require.NoError(t, err)
	assert.Len(t, downs, len(ups))

	seeds, err := collectSQL(migrations.Seeds(), ".sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_groups.sql"}, seeds)
}
