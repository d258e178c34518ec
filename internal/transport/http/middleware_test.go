package http

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPLimitersBounded(t *testing.T) {
	l := newIPLimiters(10, 10)

	for i := 0; i < maxTrackedIPs+100; i++ {
		l.get(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
	}
	assert.LessOrEqual(t, len(l.buckets), maxTrackedIPs)

	// a stable client keeps its bucket across refills of other addresses
	lim := l.get("192.168.1.1")
	assert.Same(t, lim, l.get("192.168.1.1"))
}
