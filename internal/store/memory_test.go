package store

import (
	"context"
	"testing"
	"time"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Counters(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	// Fresh counter starts at zero.
	count, err := st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for i := int64(1); i <= 3; i++ {
		count, err = st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 60, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err = st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Different window start is a different counter.
	count, err = st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Different identifier is isolated.
	count, err = st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.2", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryStore_CounterExpiry(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	base := time.Now()
	st.now = func() time.Time { return base }

	_, err := st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0, 2*time.Minute)
	require.NoError(t, err)

	// Still visible just before expiry.
	st.now = func() time.Time { return base.Add(119 * time.Second) }
	count, err := st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Gone after expiry; incrementing again restarts from one.
	st.now = func() time.Time { return base.Add(121 * time.Second) }
	count, err = st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_ActiveCounters(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	_, err := st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0, time.Minute)
	require.NoError(t, err)
	// Same identifier in two windows counts once.
	_, err = st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 60, time.Minute)
	require.NoError(t, err)
	_, err = st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.2", 0, time.Minute)
	require.NoError(t, err)
	_, err = st.IncrementCounter(ctx, models.RuleTypeUser, "user-1", 0, time.Minute)
	require.NoError(t, err)
	// IPv6 identifiers contain colons and must still split correctly.
	_, err = st.IncrementCounter(ctx, models.RuleTypeIP, "2001:db8::1", 0, time.Minute)
	require.NoError(t, err)

	counts, err := st.ActiveCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.RuleTypeIP])
	assert.Equal(t, 1, counts[models.RuleTypeUser])
}

func TestMemoryStore_RateLimitRules(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	_, err := st.GetRateLimitRule(ctx, models.RuleTypeIP, "10.0.0.1")
	assert.True(t, IsNotFound(err))

	rule := &models.RateLimitRule{
		Type:          models.RuleTypeIP,
		Identifier:    "10.0.0.1",
		Limit:         50,
		WindowSeconds: 60,
	}
	require.NoError(t, st.SetRateLimitRule(ctx, rule, 0))

	got, err := st.GetRateLimitRule(ctx, models.RuleTypeIP, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Limit)

	// Overwrite with new limit.
	rule.Limit = 75
	require.NoError(t, st.SetRateLimitRule(ctx, rule, 0))
	got, err = st.GetRateLimitRule(ctx, models.RuleTypeIP, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 75, got.Limit)

	require.NoError(t, st.DeleteRateLimitRule(ctx, models.RuleTypeIP, "10.0.0.1"))
	assert.True(t, IsNotFound(st.DeleteRateLimitRule(ctx, models.RuleTypeIP, "10.0.0.1")))
}

func TestMemoryStore_RuleTTL(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	base := time.Now()
	st.now = func() time.Time { return base }

	rule := &models.RateLimitRule{
		Type:          models.RuleTypeUser,
		Identifier:    "user-1",
		Limit:         10,
		WindowSeconds: 60,
	}
	require.NoError(t, st.SetRateLimitRule(ctx, rule, time.Hour))

	_, err := st.GetRateLimitRule(ctx, models.RuleTypeUser, "user-1")
	require.NoError(t, err)

	st.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = st.GetRateLimitRule(ctx, models.RuleTypeUser, "user-1")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_WAFRules(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()
	ctx := context.Background()

	rules, err := st.ListWAFRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rule := &models.WAFRule{
		ID:       "custom-1",
		Name:     "Custom",
		RuleType: models.WAFRuleTypeXSS,
		Pattern:  "evil",
		Action:   models.WAFActionBlock,
		Enabled:  true,
		Severity: 5,
	}
	require.NoError(t, st.SaveWAFRule(ctx, rule))

	rules, err = st.ListWAFRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "custom-1", rules[0].ID)

	// Returned rules are copies; mutating them must not leak back.
	rules[0].Pattern = "mutated"
	rules, err = st.ListWAFRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "evil", rules[0].Pattern)

	require.NoError(t, st.DeleteWAFRule(ctx, "custom-1"))
	assert.True(t, IsNotFound(st.DeleteWAFRule(ctx, "custom-1")))
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	st := NewMemoryStore(0)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.IncrementCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0, time.Minute)
	assert.Error(t, err)
	_, err = st.GetCounter(ctx, models.RuleTypeIP, "10.0.0.1", 0)
	assert.Error(t, err)
	assert.Error(t, st.Ping(ctx))
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	st := NewMemoryStore(time.Minute)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
}

func TestSplitCounterKey(t *testing.T) {
	tests := []struct {
		key        string
		ruleType   string
		identifier string
		ok         bool
	}{
		{"ip:10.0.0.1:60", "ip", "10.0.0.1", true},
		{"ip:2001:db8::1:60", "ip", "2001:db8::1", true},
		{"user:user-1:0", "user", "user-1", true},
		{"no-colons", "", "", false},
		{"only:one", "", "", false},
	}
	for _, tt := range tests {
		ruleType, identifier, ok := splitCounterKey(tt.key)
		assert.Equal(t, tt.ok, ok, "key %q", tt.key)
		if tt.ok {
			assert.Equal(t, tt.ruleType, ruleType, "key %q", tt.key)
			assert.Equal(t, tt.identifier, identifier, "key %q", tt.key)
		}
	}
}

func TestFactory(t *testing.T) {
	st, err := New(models.StoreConfig{Type: models.StoreTypeMemory})
	require.NoError(t, err)
	require.NotNil(t, st)
	st.Close()

	_, err = New(models.StoreConfig{Type: "etcd"})
	assert.Error(t, err)
}
