package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/app"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
)

func testConfig(t *testing.T, driver string) *common.Config {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)
	cfg, err := common.LoadConfig("")
	require.NoError(t, err)
	cfg.Paths.Uploads = filepath.Join(root, "uploads")
	cfg.Paths.Outputs = filepath.Join(root, "outputs")
	cfg.Paths.Checkpoints = filepath.Join(root, "checkpoints")
	cfg.Storage.Driver = driver
	if driver == "sqlite" {
		cfg.Storage.DSN = "file:" + filepath.Join(root, "grader.db") + "?_pragma=busy_timeout(5000)"
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuild_FileStorage(t *testing.T) {
	ctx := context.Background()
	a, err := app.Build(ctx, testConfig(t, "file"), nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.DB())
	assert.Nil(t, a.NATS())
	assert.NotNil(t, a.Grading)
	assert.DirExists(t, a.Config.Paths.Uploads)
	assert.DirExists(t, a.Config.Paths.Outputs)

	ids, err := a.Checkpoints.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBuild_SQLiteStorage(t *testing.T) {
	ctx := context.Background()
	a, err := app.Build(ctx, testConfig(t, "sqlite"), nil)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NotNil(t, a.DB())
	assert.IsType(t, &repository.CheckpointStore{}, a.Checkpoints)
	assert.NoError(t, a.DB().HealthCheck(ctx, 0))
}
