package dsn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/db/dsn"
)

func TestCreate(t *testing.T) {
	tests := []struct {
		name string
		db   config.DB
		want string
	}{
		{
			name: "mysql",
			db: config.DB{
				GormEngine: "mysql", Host: "db", Port: 3307, User: "auth", Password: "pw", Name: "authgate",
				Extras: "charset=utf8mb4&parseTime=True",
			},
			want: "auth:pw@tcp(db:3307)/authgate?charset=utf8mb4&parseTime=True",
		},
		{
			name: "mysql is the default engine with the default port",
			db:   config.DB{Host: "db", User: "auth", Password: "pw", Name: "authgate"},
			want: "auth:pw@tcp(db:3306)/authgate",
		},
		{
			name: "postgres",
			db: config.DB{
				GormEngine: "postgres", Host: "db", User: "auth", Password: "p@ss", Name: "authgate",
				Extras: "sslmode=disable",
			},
			want: "postgres://auth:p%40ss@db:5432/authgate?sslmode=disable",
		},
		{
			name: "sqlite file",
			db:   config.DB{GormEngine: "sqlite", Path: "/var/lib/authgate.db"},
			want: "/var/lib/authgate.db",
		},
		{
			name: "sqlite in memory",
			db:   config.DB{GormEngine: "sqlite"},
			want: ":memory:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn.Create(tt.db))
		})
	}
}
