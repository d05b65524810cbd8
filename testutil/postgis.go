package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostGISImage is the container image used when no external test database is configured.
const PostGISImage = "postgis/postgis:16-3.4"

// ContainerEnvVar opts integration tests into starting a disposable PostGIS
// container when TEST_DATABASE_URL is unset.
const ContainerEnvVar = "TEST_POSTGIS_CONTAINER"

// StartPostGIS starts a PostGIS container and returns its DSN and a function
// that terminates it.
func StartPostGIS(ctx context.Context) (string, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        PostGISImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "mapeditor",
			"POSTGRES_PASSWORD": "mapeditor",
			"POSTGRES_DB":       "mapeditor_test",
		},
		// Postgres restarts once after init scripts, so wait for the second ready line.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("testutil.StartPostGIS: create container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("testutil.StartPostGIS: host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("testutil.StartPostGIS: port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://mapeditor:mapeditor@%s:%s/mapeditor_test?sslmode=disable", host, port.Port())
	return dsn, terminate, nil
}

// EnsureTestDatabase makes TEST_DATABASE_URL point at a database. When it is
// already set nothing happens; when TEST_POSTGIS_CONTAINER=1 a container is
// started and the variable is set for the rest of the process. The returned
// function releases whatever was started and is never nil.
func EnsureTestDatabase(ctx context.Context) (func(), error) {
	if os.Getenv(DatabaseEnvVar) != "" || os.Getenv(ContainerEnvVar) != "1" {
		return func() {}, nil
	}
	dsn, terminate, err := StartPostGIS(ctx)
	if err != nil {
		return func() {}, err
	}
	if err := os.Setenv(DatabaseEnvVar, dsn); err != nil {
		terminate()
		return func() {}, err
	}
	return terminate, nil
}
