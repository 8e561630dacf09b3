package main

import (
	"context"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/jurisdiction"
	"github.com/sells-group/permit-cli/internal/model"
)

func boundary(t *testing.T, id string, x0, y0, x1, y1 float64) model.Boundary {
	t.Helper()
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
		{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0},
	}}))
	mp := jurisdiction.ShapeToMultiPolygon(&poly)
	require.NotNil(t, mp)
	wkb, err := jurisdiction.EncodeWKB(mp)
	require.NoError(t, err)
	return model.Boundary{
		Authority: model.Authority{ID: id, Name: id, Level: model.LevelCity},
		State:     "TX",
		Geometry:  wkb,
	}
}

func TestLoadBoundaries_SQLite(t *testing.T) {
	testConfig(t)
	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := loadBoundaries(ctx, st, []model.Boundary{
		boundary(t, "austin-tx", -98.0, 30.0, -97.5, 30.5),
		boundary(t, "dallas-tx", -97.0, 32.5, -96.5, 33.0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	auth, err := st.LocateJurisdiction(ctx, 30.27, -97.74)
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, "austin-tx", auth.ID)
}

func TestLoadBoundaries_StopsOnError(t *testing.T) {
	sink := new(mockSink)
	a := model.Boundary{Authority: model.Authority{ID: "austin-tx"}}
	b := model.Boundary{Authority: model.Authority{ID: "dallas-tx"}}
	sink.On("UpsertJurisdiction", mock.Anything, a).Return(nil)
	sink.On("UpsertJurisdiction", mock.Anything, b).Return(eris.New("locked"))

	n, err := loadBoundaries(context.Background(), sink, []model.Boundary{a, b, {}})
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, err, "upsert jurisdiction dallas-tx")
	sink.AssertNumberOfCalls(t, "UpsertJurisdiction", 2)
}

func TestLoadBoundaries_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := loadBoundaries(ctx, new(mockSink), []model.Boundary{{}})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}
