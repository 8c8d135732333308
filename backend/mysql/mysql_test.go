package mysql

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/backend/test"
)

// Tests need a server. The DSN names no database, e.g. "root:root@tcp(localhost:3306)/".
const dsnEnv = "MEDIAFLOW_MYSQL_DSN"

// Creating and dropping databases is slow, but easiest for complete test isolation.

func testDSN(t *testing.T) string {
	if testing.Short() {
		t.Skip()
	}

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	return dsn
}

func setupDatabase(dsn string) (string, string) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	dbName := "test_" + strings.Replace(uuid.NewString(), "-", "", -1)
	if _, err := db.Exec("CREATE DATABASE " + dbName); err != nil {
		panic(fmt.Errorf("creating database: %w", err))
	}

	if err := db.Close(); err != nil {
		panic(err)
	}

	base, params, _ := strings.Cut(dsn, "?")
	dbDSN := strings.TrimSuffix(base, "/") + "/" + dbName
	if params != "" {
		dbDSN += "?" + params
	}

	return dbName, dbDSN
}

func dropDatabase(dsn, dbName string) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	if _, err := db.Exec("DROP DATABASE IF EXISTS " + dbName); err != nil {
		panic(fmt.Errorf("dropping database: %w", err))
	}

	if err := db.Close(); err != nil {
		panic(err)
	}
}

func Test_MysqlBackend(t *testing.T) {
	dsn := testDSN(t)

	var dbName string

	test.BackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		var dbDSN string
		dbName, dbDSN = setupDatabase(dsn)

		return NewMysqlBackendWithDSN(dbDSN, WithBackendOptions(options...))
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dsn, dbName)
	})
}

func Test_EndToEndMysqlBackend(t *testing.T) {
	dsn := testDSN(t)

	var dbName string

	test.EndToEndBackendTest(t, func(options ...backend.BackendOption) backend.Backend {
		var dbDSN string
		dbName, dbDSN = setupDatabase(dsn)

		return NewMysqlBackendWithDSN(dbDSN, WithBackendOptions(options...))
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dsn, dbName)
	})
}

func Test_withParams(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		params []string
		want   string
	}{
		{"no params", "u:p@tcp(h:3306)/db", []string{"parseTime=true"}, "u:p@tcp(h:3306)/db?parseTime=true"},
		{"existing params", "u:p@tcp(h:3306)/db?tls=true", []string{"parseTime=true"}, "u:p@tcp(h:3306)/db?tls=true&parseTime=true"},
		{"keeps explicit value", "u:p@tcp(h:3306)/db?loc=Local", []string{"loc=UTC", "parseTime=true"}, "u:p@tcp(h:3306)/db?loc=Local&parseTime=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, withParams(tt.dsn, tt.params...))
		})
	}
}
