//go:build integration

package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/felixgeelhaar/courseware/internal/storage"
	"github.com/felixgeelhaar/courseware/internal/storage/sqlstore"
	"github.com/felixgeelhaar/courseware/internal/storage/storagetest"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return host, mapped.Port()
}

func TestIntegration_Postgres(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "courseware",
			"POSTGRES_PASSWORD": "courseware",
			"POSTGRES_DB":       "courseware",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")

	dsn := fmt.Sprintf("postgres://courseware:courseware@%s:%s/courseware?sslmode=disable", host, port)

	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			table := "kv_" + driver
			storagetest.Conformance(t, func(t *testing.T) storage.Store {
				s, err := sqlstore.Open(context.Background(), driver, dsn, table)
				if err != nil {
					t.Fatalf("Open() error = %v", err)
				}
				keys, _ := s.Keys()
				for _, k := range keys {
					s.RemoveItem(k)
				}
				t.Cleanup(func() { s.Close() })
				return s
			})
		})
	}
}

func TestIntegration_MySQL(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "courseware",
			"MYSQL_DATABASE":      "courseware",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(120 * time.Second),
	}, "3306/tcp")

	dsn := fmt.Sprintf("root:courseware@tcp(%s:%s)/courseware", host, port)

	storagetest.Conformance(t, func(t *testing.T) storage.Store {
		s, err := sqlstore.Open(context.Background(), "mysql", dsn, "")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		keys, _ := s.Keys()
		for _, k := range keys {
			s.RemoveItem(k)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
