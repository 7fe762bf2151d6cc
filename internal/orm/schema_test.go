package orm

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coregx/dbfactory/internal/logger"
	"github.com/coregx/dbfactory/internal/sqlbuilder"
)

type user struct {
	ID       int64
	Name     string
	Age      int
	Score    float64
	Active   bool
	JoinTime time.Time
	Password string
}

var userSchema = NewSchema[user]("user_info",
	Int64("id", func(u *user) *int64 { return &u.ID }),
	String("userName", func(u *user) *string { return &u.Name }, Column("name")),
	Int("age", func(u *user) *int { return &u.Age }),
	Time("joinTime", func(u *user) *time.Time { return &u.JoinTime }),
	String("password", func(u *user) *string { return &u.Password }, Ignore()),
)

func TestMapping(t *testing.T) {
	m := userSchema.Mapping([]string{"JOIN_TIME", "Id", "extra", "password", "NAME"})

	require.Len(t, m, 3)
	assert.Equal(t, "id", m[0].Field.Name)
	assert.Equal(t, 1, m[0].Ordinal)
	assert.Equal(t, "userName", m[1].Field.Name)
	assert.Equal(t, 4, m[1].Ordinal)
	assert.Equal(t, "joinTime", m[2].Field.Name)
	assert.Equal(t, 0, m[2].Ordinal)
	assert.Equal(t, []int{1, 4, 0}, m.Ordinals())
}

func TestMappingFirstColumnWins(t *testing.T) {
	m := userSchema.Mapping([]string{"id", "ID"})
	require.Len(t, m, 1)
	assert.Equal(t, 0, m[0].Ordinal)
}

func TestMappingNoMatch(t *testing.T) {
	assert.Empty(t, userSchema.Mapping([]string{"foo", "bar"}))
	assert.Empty(t, userSchema.Mapping(nil))
}

func TestDescriptors(t *testing.T) {
	d := userSchema.Descriptors()
	require.Len(t, d, 5)
	assert.Equal(t, "password", d[4].Name)
	assert.True(t, d[4].Ignore)
	assert.Equal(t, "user_info", userSchema.Table())
}

func TestBoundPairs(t *testing.T) {
	u := user{ID: 7, Name: "bob", Age: 30, Password: "hunter2"}
	b := userSchema.Bind(&u)

	assert.Equal(t, "user_info", b.TableName())
	assert.Equal(t, []sqlbuilder.Pair{
		{Column: "ID", Literal: "7"},
		{Column: "name", Literal: "'bob'"},
		{Column: "AGE", Literal: "30"},
		{Column: "JOIN_TIME", Literal: "NULL"},
	}, b.Pairs())
}

func TestBoundPairsOnly(t *testing.T) {
	u := user{ID: 7, Name: "bob", Age: 30, JoinTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	b := userSchema.Bind(&u)

	assert.Equal(t, []sqlbuilder.Pair{
		{Column: "name", Literal: "'bob'"},
		{Column: "JOIN_TIME", Literal: "'2024-01-02 03:04:05'"},
	}, b.Pairs("userName", "JOIN_TIME"))

	assert.Equal(t, []sqlbuilder.Pair{{Column: "AGE", Literal: "30"}}, b.Pairs("age"))
	assert.Empty(t, b.Pairs("password"))
}

func TestBoundWithBuilder(t *testing.T) {
	u := user{ID: 1, Name: "ann", Age: 20}

	insert := sqlbuilder.New().Save(userSchema.Bind(&u)).SQL()
	assert.Equal(t, "INSERT INTO user_info(ID, name, AGE, JOIN_TIME) VALUES(1, 'ann', 20, NULL)", insert)

	update := sqlbuilder.New().UpdateRecord(userSchema.Bind(&u), "ID=1", "age").SQL()
	assert.Equal(t, "UPDATE user_info SET AGE=20 WHERE ID=1", update)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE user_info (
		id INTEGER PRIMARY KEY,
		name TEXT,
		age TEXT,
		join_time TEXT,
		password TEXT
	)`)
	require.NoError(t, err)
	return db
}

func TestMaterializeRoundTrip(t *testing.T) {
	db := openTestDB(t)

	in := user{ID: 1, Name: "ann", Age: 20, JoinTime: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), Password: "x"}
	_, err := db.Exec(sqlbuilder.New().Save(userSchema.Bind(&in)).SQL())
	require.NoError(t, err)

	rows, err := db.Query("SELECT * FROM user_info")
	require.NoError(t, err)
	defer rows.Close()

	out, err := Materialize(rows, userSchema, &logger.NoopLogger{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, "ann", out[0].Name)
	assert.Equal(t, 20, out[0].Age)
	assert.True(t, in.JoinTime.Equal(out[0].JoinTime))
	assert.Empty(t, out[0].Password, "ignored field must not be read")
}

func TestMaterializeNullAndSkip(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO user_info(id, name, age) VALUES
		(1, 'ann', '20'),
		(2, NULL, NULL),
		(3, 'bad', 'not a number'),
		(4, 'dan', '40')`)
	require.NoError(t, err)

	rows, err := db.Query("SELECT id, name, age FROM user_info ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	log := &recordingLogger{}
	out, err := Materialize(rows, userSchema, log)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 2, 4}, []int64{out[0].ID, out[1].ID, out[2].ID})
	assert.Empty(t, out[1].Name)
	assert.Zero(t, out[1].Age)
	assert.Equal(t, 40, out[2].Age)
	assert.Equal(t, 1, log.warns)
}

func TestMaterializeEmpty(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query("SELECT * FROM user_info")
	require.NoError(t, err)
	defer rows.Close()

	out, err := Materialize(rows, userSchema, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMaterializeIterationError(t *testing.T) {
	boom := errors.New("connection reset")
	rows := &fakeRows{
		cols: []string{"id", "name"},
		data: [][]any{{int64(1), "ann"}},
		err:  boom,
	}

	out, err := Materialize(rows, userSchema, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, out, 1)
}

func TestMaterializeScanError(t *testing.T) {
	rows := &fakeRows{
		cols:    []string{"id"},
		data:    [][]any{{int64(1)}, {int64(2)}},
		scanErr: map[int]error{1: errors.New("bad row")},
	}

	log := &recordingLogger{}
	out, err := Materialize(rows, userSchema, log)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, 1, log.warns)
}

func TestMaterializeColumnsError(t *testing.T) {
	rows := &fakeRows{colsErr: errors.New("closed")}
	_, err := Materialize(rows, userSchema, nil)
	assert.Error(t, err)
}

type fakeRows struct {
	cols    []string
	colsErr error
	data    [][]any
	pos     int
	scanErr map[int]error
	err     error
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, r.colsErr }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if err := r.scanErr[r.pos]; err != nil {
		return err
	}
	for i, v := range r.data[r.pos-1] {
		*(dest[i].(*any)) = v
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

type recordingLogger struct {
	logger.NoopLogger
	warns int
}

func (l *recordingLogger) Warn(string, ...any) { l.warns++ }
