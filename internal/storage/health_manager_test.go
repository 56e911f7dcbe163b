package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager()
	assert.False(t, hm.IsHealthy("kafka", time.Minute))

	hm.UpdateHealth("kafka", CreateHealthData(StatusHealthy, "ok", nil))
	hm.UpdateHealth("valkey", CreateHealthData(StatusUnhealthy, "ping failed", errors.New("refused")))

	assert.True(t, hm.IsHealthy("kafka", time.Minute))
	assert.False(t, hm.IsHealthy("valkey", time.Minute))

	h, ok := hm.GetHealth("valkey")
	assert.True(t, ok)
	assert.Equal(t, "refused", h.Error)

	all := hm.GetAllHealth()
	assert.Len(t, all, 2)

	stale := CreateHealthData(StatusHealthy, "ok", nil)
	stale.LastCheck = time.Now().Add(-time.Hour)
	hm.UpdateHealth("kafka", stale)
	assert.False(t, hm.IsHealthy("kafka", time.Minute))
}
