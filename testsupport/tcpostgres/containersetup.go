package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image         = "postgres:16"
	containerName = "boostrace-test"
	pgPort        = nat.Port("5432/tcp")
)

// RaceDBContainer is the postgres container the repository tests run against.
// It is reused between test packages.
type RaceDBContainer struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type ContainerOption func(c *RaceDBContainer, req *testcontainers.ContainerRequest)

func WithStartupTimeout(d time.Duration) ContainerOption {
	return func(_ *RaceDBContainer, req *testcontainers.ContainerRequest) {
		req.WaitingFor = wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(d)
	}
}

// StartRaceDB starts (or reuses) the postgres container.
func StartRaceDB(ctx context.Context, opts ...ContainerOption) (*RaceDBContainer, error) {
	ret := &RaceDBContainer{user: "postgres", password: "password", dbName: "postgres"}
	req := testcontainers.ContainerRequest{
		Image:        image,
		Name:         containerName,
		ExposedPorts: []string{string(pgPort)},
		Cmd:          []string{"postgres", "-c", "fsync=off"},
	}
	WithStartupTimeout(5*time.Second)(ret, &req)
	for _, opt := range opts {
		opt(ret, &req)
	}
	req.Env = map[string]string{
		"POSTGRES_USER":     ret.user,
		"POSTGRES_PASSWORD": ret.password,
		"POSTGRES_DB":       ret.dbName,
	}

	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            true,
		})
	if err != nil {
		return nil, err
	}
	ret.Container = container
	return ret, nil
}

// DBURL returns the url of the database inside the container.
func (c *RaceDBContainer) DBURL(ctx context.Context) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := c.MappedPort(ctx, pgPort)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.dbName), nil
}
