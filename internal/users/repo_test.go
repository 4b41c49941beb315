package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brunamourao/usermail-backend/pkg/db"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.User{}))
	return conn
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Name: "Bruna", Email: "bruna@example.com"})
	require.NoError(t, err)

	byEmail, err := repo.FindByEmail(ctx, "bruna@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bruna@example.com", byID.Email)
}

func TestRepositoryRejectsDuplicateEmail(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateUserDTO{Name: "Bruna", Email: "bruna@example.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateUserDTO{Name: "Outra", Email: "bruna@example.com"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, emailUniqueConstraint))
}

func TestRepositoryFindMissingUser(t *testing.T) {
	repo := NewRepository(newTestDB(t))

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListReturnsNewestFirst(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	older, err := repo.Create(ctx, CreateUserDTO{Name: "Primeira", Email: "primeira@example.com"})
	require.NoError(t, err)
	newer, err := repo.Create(ctx, CreateUserDTO{Name: "Segunda", Email: "segunda@example.com"})
	require.NoError(t, err)

	// sqlite stores autoCreateTime at second precision; force distinct ordering
	require.NoError(t, conn.Model(&models.User{}).
		Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	listed, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, newer.ID, listed[0].ID)
	assert.Equal(t, older.ID, listed[1].ID)
}
