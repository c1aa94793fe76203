package service

import (
	"context"
	"testing"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseSourceIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []uint
	}{
		{"numbers", `[5, 7]`, []uint{5, 7}},
		{"numeric strings", `["5", " 9 "]`, []uint{5, 9}},
		{"invalid entries dropped", `["abc", 3, null, true, 2.5, -1, 0]`, []uint{3}},
		{"duplicates removed", `[4, "4", 4]`, []uint{4}},
		{"all invalid", `["x", "y"]`, []uint{}},
		{"empty", `[]`, []uint{}},
		{"null", `null`, []uint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSourceIDs([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSourceIDs([]byte(`{"a":1}`))
	assert.Error(t, err)
}

func TestCanonServiceResolveScope(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCanonRepository(newTestDB(t))
	svc := NewCanonService(repo)

	scope, err := svc.ResolveScope(ctx, 1)
	require.NoError(t, err)
	assert.False(t, scope.Locked)
	assert.Nil(t, scope.Filter())

	require.NoError(t, repo.Upsert(ctx, &model.CanonSettings{AgentID: 1, Sources: datatypes.JSON(`[5]`)}))
	scope, err = svc.ResolveScope(ctx, 1)
	require.NoError(t, err)
	assert.True(t, scope.Locked)
	assert.Equal(t, []uint{5}, scope.Filter())
	assert.False(t, scope.AllowsNothing())

	// 配置了来源但全部无效：锁定为空，而不是放开检索
	require.NoError(t, repo.Upsert(ctx, &model.CanonSettings{AgentID: 1, Sources: datatypes.JSON(`["abc"]`)}))
	scope, err = svc.ResolveScope(ctx, 1)
	require.NoError(t, err)
	assert.True(t, scope.AllowsNothing())

	require.NoError(t, repo.Upsert(ctx, &model.CanonSettings{AgentID: 1, Sources: datatypes.JSON(`{broken`)}))
	scope, err = svc.ResolveScope(ctx, 1)
	require.NoError(t, err)
	assert.True(t, scope.AllowsNothing())

	require.NoError(t, repo.Upsert(ctx, &model.CanonSettings{AgentID: 1, Sources: datatypes.JSON(`[]`)}))
	scope, err = svc.ResolveScope(ctx, 1)
	require.NoError(t, err)
	assert.False(t, scope.Locked)
}

func TestCanonServiceUpdateSources(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCanonRepository(newTestDB(t))
	svc := NewCanonService(repo)

	ids, err := svc.UpdateSources(ctx, 2, []any{float64(7), "8", "bad"})
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 8}, ids)

	got, err := svc.GetSources(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 8}, got)

	ids, err = svc.UpdateSources(ctx, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	settings, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, settings)
}
