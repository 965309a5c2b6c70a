package telemetry

import (
	"testing"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("full payload", func(t *testing.T) {
		ev, err := Decode([]byte(`{"loan_id":"X","predicted_carbon_reduction":1500,"carbon_est":12.5}`), now)
		require.NoError(t, err)
		assert.Equal(t, "X", ev.LoanID)
		require.NotNil(t, ev.PredictedCarbonReduction)
		assert.Equal(t, 1500.0, *ev.PredictedCarbonReduction)
		require.NotNil(t, ev.CarbonEst)
		assert.Equal(t, 12.5, *ev.CarbonEst)
		assert.Equal(t, now, ev.ReceivedAt)
		assert.Equal(t, domain.TriggerTelemetry, ev.Trigger)
	})

	t.Run("optional fields absent", func(t *testing.T) {
		ev, err := Decode([]byte(`{"loan_id":" test-loan "}`), now)
		require.NoError(t, err)
		assert.Equal(t, "test-loan", ev.LoanID)
		assert.Nil(t, ev.PredictedCarbonReduction)
		assert.Nil(t, ev.CarbonEst)
	})

	malformed := map[string]string{
		"missing loan_id":  `{"predicted_carbon_reduction":1500}`,
		"blank loan_id":    `{"loan_id":"  "}`,
		"null loan_id":     `{"loan_id":null}`,
		"numeric loan_id":  `{"loan_id":42}`,
		"not json":         `loan X=1500`,
		"array":            `[1,2,3]`,
		"wrong field type": `{"loan_id":"X","predicted_carbon_reduction":"lots"}`,
		"empty":            ``,
	}
	for name, payload := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload), now)
			assert.ErrorIs(t, err, domain.ErrMalformedTelemetry)
		})
	}
}
