package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQ(t *testing.T) {
	ok := []string{"cola", "Café con leche", "7501234", "o'brien", "a-b.c"}
	for _, s := range ok {
		_, valid := Q(s)
		assert.True(t, valid, s)
	}
	bad := []string{"", "   ", "<script>", "a;DROP", "x%"}
	for _, s := range bad {
		_, valid := Q(s)
		assert.False(t, valid, s)
	}
	q, valid := Q("  " + strings.Repeat("a", 80) + " ")
	assert.True(t, valid)
	assert.Len(t, q, 50)
}

func TestQty(t *testing.T) {
	n, clamped := Qty("12", 10)
	assert.Equal(t, 10, n)
	assert.True(t, clamped)
	n, clamped = Qty("1.5", 10)
	assert.Equal(t, 1, n)
	assert.False(t, clamped)

	cases := []struct {
		in      string
		want    int
		clamped bool
	}{
		{"99999999999999999999", 9999, true},
		{"10000.5", 9999, true},
		{"9999.9", 9999, false},
		{" 42 ", 42, false},
		{"abc", 1, false},
		{"0", 1, false},
		{"-5", 1, false},
		{"0.5", 1, false},
	}
	for _, tc := range cases {
		n, clamped := Qty(tc.in, 9999)
		assert.Equal(t, tc.want, n, tc.in)
		assert.Equal(t, tc.clamped, clamped, tc.in)
	}
}

func TestPriceAndClampMoney(t *testing.T) {
	assert.Equal(t, 0.0, Price("-1", 100))
	assert.Equal(t, 0.0, Price("abc", 100))
	assert.Equal(t, 100.0, Price("1e9", 100))
	assert.Equal(t, 2.68, Price("2.675", 100))
	assert.Equal(t, 5.0, ClampMoney(7, 0, 5))
	assert.Equal(t, 1.0, ClampMoney(-3, 1, 5))
}

func TestStoreAndSyncType(t *testing.T) {
	_, ok := Store("customers")
	assert.True(t, ok)
	_, ok = Store("Customers")
	assert.False(t, ok)
	_, ok = Store("../etc")
	assert.False(t, ok)

	_, ok = SyncType("customer.create")
	assert.True(t, ok)
	_, ok = SyncType("has space")
	assert.False(t, ok)
}

func TestIndex(t *testing.T) {
	n, ok := Index("3")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = Index("-1")
	assert.False(t, ok)
	_, ok = Index("x")
	assert.False(t, ok)
}
