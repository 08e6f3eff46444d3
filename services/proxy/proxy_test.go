package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotator(t *testing.T) {
	r, err := NewRotator([]string{"http://p1:8080", "socks5://p2:1080"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	_, err = NewRotator([]string{"ftp://p1:21"}, time.Minute)
	assert.Error(t, err)

	_, err = NewRotator([]string{"http://"}, time.Minute)
	assert.Error(t, err)

	empty, err := NewRotator(nil, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, empty.Next())
}

func TestRotatorRoundRobin(t *testing.T) {
	r, err := NewRotator([]string{"http://p1:8080", "http://p2:8080", "http://p3:8080"}, time.Minute)
	require.NoError(t, err)

	var hosts []string
	for i := 0; i < 4; i++ {
		hosts = append(hosts, r.Next().Host)
	}
	assert.Equal(t, []string{"p1:8080", "p2:8080", "p3:8080", "p1:8080"}, hosts)
}

func TestRotatorCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := NewRotator([]string{"http://p1:8080", "http://p2:8080"}, time.Minute)
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	first := r.Next()
	r.MarkFailed(first)

	// p1 is cooling down, so p2 is handed out twice
	assert.Equal(t, "p2:8080", r.Next().Host)
	assert.Equal(t, "p2:8080", r.Next().Host)

	now = now.Add(time.Minute)
	hosts := map[string]bool{r.Next().Host: true, r.Next().Host: true}
	assert.True(t, hosts["p1:8080"], "p1 is back after the cooldown")

	stats := r.Stats()
	assert.Equal(t, 1, stats[0].Failures)
}

func TestRotatorAllCoolingDown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := NewRotator([]string{"http://p1:8080", "http://p2:8080"}, time.Hour)
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	p1 := r.Next()
	p2 := r.Next()
	r.MarkFailed(p2)
	now = now.Add(time.Second)
	r.MarkFailed(p1)

	assert.Equal(t, "p2:8080", r.Next().Host, "least recently failed proxy")
}
