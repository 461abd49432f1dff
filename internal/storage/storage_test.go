package storage

import (
	"testing"

	"agenthub/internal/config"
	"agenthub/internal/repository/memory"
)

func TestDriver(t *testing.T) {
	cases := []struct {
		driver, dsn, want string
		wantErr           bool
	}{
		{"auto", "", DriverMemory, false},
		{"", "host=localhost", DriverPostgres, false},
		{"AUTO", "host=localhost", DriverPostgres, false},
		{"memory", "host=localhost", DriverMemory, false},
		{"postgres", "", "", true},
		{"mysql", "", "", true},
	}
	for _, tc := range cases {
		cfg := config.Config{Store: config.StoreConfig{Driver: tc.driver}, DB: config.DBConfig{DSN: tc.dsn}}
		got, err := Driver(cfg)
		if (err != nil) != tc.wantErr {
			t.Fatalf("Driver(%q,%q) err=%v", tc.driver, tc.dsn, err)
		}
		if got != tc.want {
			t.Fatalf("Driver(%q,%q)=%q want %q", tc.driver, tc.dsn, got, tc.want)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	b, err := Open(config.Config{}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Repo.(*memory.Store); !ok || b.Driver != DriverMemory {
		t.Fatalf("expected memory store, got %T %s", b.Repo, b.Driver)
	}
}
