package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/config"
	"pharmacy/backend/internal/events"
)

func TestOpenRepositoryMemory(t *testing.T) {
	db, err := openRepository(context.Background(), config.Config{StoreDriver: config.DriverMemory})
	require.NoError(t, err)
	defer db.close()

	medicines, err := db.repo.ListMedicines(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, medicines)
	assert.Nil(t, db.ping)
}

func TestOpenRepositorySQLite(t *testing.T) {
	db, err := openRepository(context.Background(), config.Config{StoreDriver: config.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.close()

	require.NotNil(t, db.ping)
	assert.NoError(t, db.ping(context.Background()))
}

func TestOpenRepositoryRejectsUnknownDriver(t *testing.T) {
	_, err := openRepository(context.Background(), config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

func TestNewPublisherWithoutBrokersIsNoop(t *testing.T) {
	publisher := newPublisher(config.Config{})
	assert.IsType(t, events.NoopPublisher{}, publisher)
}
