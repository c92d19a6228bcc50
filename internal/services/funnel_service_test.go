package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
	"visitrack/pkg/logger"
)

func stepUsersOf(n int, first, last time.Time) map[string]interfaces.StepTiming {
	users := make(map[string]interfaces.StepTiming, n)
	for i := 0; i < n; i++ {
		users[fmt.Sprintf("u%d", i)] = interfaces.StepTiming{First: first, Last: last}
	}
	return users
}

func threeStepFunnel() *models.Funnel {
	return &models.Funnel{
		Name: "Checkout",
		Steps: []models.FunnelStep{
			{Name: stepKey(0), EventType: "page_view"},
			{Name: stepKey(1), EventType: "click", EventName: "add_to_cart"},
			{Name: stepKey(2), EventType: "purchase"},
		},
	}
}

func TestComputeFunnel(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	stepUsers := []map[string]interfaces.StepTiming{
		stepUsersOf(100, t0, t0),
		stepUsersOf(40, t0.Add(30*time.Second), t0.Add(30*time.Second)),
		stepUsersOf(10, t0.Add(time.Minute), t0.Add(time.Minute)),
	}

	result := computeFunnel(threeStepFunnel(), stepUsers)

	require.Len(t, result.Steps, 3)
	expected := []struct {
		users      int64
		conversion float64
		dropOff    float64
	}{
		{100, 100, 0},
		{40, 40, 60},
		{10, 25, 75},
	}
	for i, e := range expected {
		assert.Equal(t, e.users, result.Steps[i].Users, "step %d users", i)
		assert.Equal(t, e.conversion, result.Steps[i].ConversionRate, "step %d conversion", i)
		assert.Equal(t, e.dropOff, result.Steps[i].DropOffRate, "step %d drop-off", i)
	}
	assert.Equal(t, int64(100), result.Entrants)
	assert.Equal(t, int64(10), result.Completions)
	assert.Equal(t, 10.0, result.OverallConversion)
	assert.Equal(t, 60.0, result.AverageCompletionTime)
}

func TestComputeFunnelEmptySteps(t *testing.T) {
	stepUsers := []map[string]interfaces.StepTiming{{}, {}, {}}

	result := computeFunnel(threeStepFunnel(), stepUsers)

	assert.Equal(t, int64(0), result.Entrants)
	assert.Equal(t, 0.0, result.OverallConversion)
	assert.Equal(t, 0.0, result.Steps[1].ConversionRate)
	assert.Equal(t, 100.0, result.Steps[1].DropOffRate)
}

func TestValidateFunnel(t *testing.T) {
	tests := []struct {
		name     string
		funnel   *models.Funnel
		expected []string
	}{
		{name: "Valid", funnel: threeStepFunnel()},
		{name: "Missing everything", funnel: &models.Funnel{}, expected: []string{"name", "steps"}},
		{
			name: "Step without event type",
			funnel: &models.Funnel{
				Name:  "Signup",
				Steps: []models.FunnelStep{{EventType: "page_view"}, {Name: "submit"}},
			},
			expected: []string{"steps"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFunnel(tt.funnel)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrValidation))
			details := utils.ErrorDetails(err)
			for _, key := range tt.expected {
				assert.Contains(t, details, key)
			}
		})
	}
}

func TestAnalyzeFunnel(t *testing.T) {
	ctx := context.Background()
	funnelRepo := newFakeFunnelRepo()
	eventRepo := newFakeEventRepo()

	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	eventRepo.stepUsers = []map[string]interfaces.StepTiming{
		stepUsersOf(20, t0, t0),
		stepUsersOf(10, t0, t0.Add(time.Minute)),
		stepUsersOf(5, t0, t0.Add(2*time.Minute)),
	}

	svc := NewFunnelService(funnelRepo, eventRepo, logger.NewNop())
	computedAt := t0.Add(time.Hour)
	svc.(*funnelService).now = func() time.Time { return computedAt }

	funnel, err := svc.CreateFunnel(ctx, threeStepFunnel())
	require.NoError(t, err)

	result, err := svc.AnalyzeFunnel(ctx, funnel.ID, FunnelQuery{})
	require.NoError(t, err)

	assert.Equal(t, funnel.ID.Hex(), result.FunnelID)
	assert.Equal(t, 50.0, result.Steps[1].ConversionRate)
	assert.Equal(t, 50.0, result.Steps[2].ConversionRate)
	assert.Equal(t, 25.0, result.OverallConversion)
	assert.Equal(t, 120.0, result.AverageCompletionTime)
	assert.Equal(t, computedAt, result.ComputedAt)

	require.NotNil(t, funnelRepo.saved)
	assert.Equal(t, result.OverallConversion, funnelRepo.saved.OverallConversion)
}

func TestAnalyzeFunnelRejectsInvertedRange(t *testing.T) {
	svc := NewFunnelService(newFakeFunnelRepo(), newFakeEventRepo(), logger.NewNop())
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	_, err := svc.AnalyzeFunnel(context.Background(), threeStepFunnel().ID, FunnelQuery{From: &from, To: &to})

	assert.True(t, errors.Is(err, utils.ErrValidation))
}

func TestAnalyzeFunnelSurvivesMetricsCacheFailure(t *testing.T) {
	ctx := context.Background()
	funnelRepo := newFakeFunnelRepo()
	funnelRepo.saveErr = errFakeStore
	eventRepo := newFakeEventRepo()
	eventRepo.stepUsers = []map[string]interfaces.StepTiming{{"u1": {}}, {}, {}}

	svc := NewFunnelService(funnelRepo, eventRepo, logger.NewNop())
	funnel, err := svc.CreateFunnel(ctx, threeStepFunnel())
	require.NoError(t, err)

	result, err := svc.AnalyzeFunnel(ctx, funnel.ID, FunnelQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Entrants)
}
